// ABOUTME: Timestamp sample types and clock base mapping
// ABOUTME: Collapses per-timebase (position, time) pairs into one best pair
package stream

// ClockBase selects the clock a caller wants a timestamp expressed in.
type ClockBase int

const (
	// ClockMonotonic is the monotonic clock, not advancing across suspend.
	ClockMonotonic ClockBase = iota
	// ClockBoottime is the monotonic clock including time spent suspended.
	ClockBoottime
)

// Timebase identifies a clock base inside a sink-reported timestamp sample.
type Timebase int

const (
	TimebaseMonotonic Timebase = iota
	TimebaseBoottime
	timebaseCount
)

type timestampEntry struct {
	framePosition int64
	timeNanos     int64
	valid         bool
}

// TimestampSample is a sink-reported set of (frame position, time) pairs, one
// per timebase. A base the sink has never recorded against stays invalid.
type TimestampSample struct {
	entries [timebaseCount]timestampEntry
}

// Record stores a (position, time) pair for a timebase. Out-of-range bases
// are ignored.
func (s *TimestampSample) Record(tb Timebase, framePosition, timeNanos int64) {
	if tb < 0 || tb >= timebaseCount {
		return
	}
	s.entries[tb] = timestampEntry{
		framePosition: framePosition,
		timeNanos:     timeNanos,
		valid:         true,
	}
}

// Best returns the best available pair for the timebase, or
// ErrTimestampUnavailable if none was ever recorded for it.
func (s TimestampSample) Best(tb Timebase) (framePosition, timeNanos int64, err error) {
	if tb < 0 || tb >= timebaseCount {
		return 0, 0, ErrUnsupportedValue
	}
	e := s.entries[tb]
	if !e.valid {
		return 0, 0, ErrTimestampUnavailable
	}
	return e.framePosition, e.timeNanos, nil
}
