// ABOUTME: Stream lifecycle states
// ABOUTME: Defines the state enum driven by transition requests and polling
package stream

// State is the lifecycle state of a Stream.
//
// Transitional states (Starting, Pausing, Flushing, Stopping) are entered by
// a Request* call and left by UpdateState once the sink is observed to have
// caught up with the request.
type State int32

const (
	StateUninitialized State = iota
	StateOpen
	StateStarting
	StateStarted
	StatePausing
	StatePaused
	StateFlushing
	StateFlushed
	StateStopping
	StateStopped
	StateClosed
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StatePausing:
		return "pausing"
	case StatePaused:
		return "paused"
	case StateFlushing:
		return "flushing"
	case StateFlushed:
		return "flushed"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}
