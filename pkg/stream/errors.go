// ABOUTME: Error taxonomy for the stream core
// ABOUTME: Sentinel errors distinguished from the would-block signal
package stream

import "errors"

var (
	// ErrInvalidState is returned when an operation is requested while the
	// sink is absent or the state machine is not in a compatible state.
	ErrInvalidState = errors.New("invalid stream state")

	// ErrUnsupportedValue is returned for an unrecognized clock base.
	ErrUnsupportedValue = errors.New("unsupported value")

	// ErrOutOfRange is returned when a frame-to-byte conversion is not
	// representable.
	ErrOutOfRange = errors.New("value out of range")

	// ErrWouldBlock is reported by a Sink when a non-blocking write finds the
	// buffer full. Stream.Write translates it into a zero-frame result;
	// callers of Stream never see it.
	ErrWouldBlock = errors.New("sink would block")

	// ErrTimestampUnavailable is returned when no timestamp has been recorded
	// for the requested clock base.
	ErrTimestampUnavailable = errors.New("timestamp unavailable")
)
