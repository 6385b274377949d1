// ABOUTME: Sink capability interface consumed by the stream core
// ABOUTME: Abstracts the device-managed ring buffer so the core is testable
package stream

// SinkConfig carries the negotiated parameters a sink is opened with. All
// defaulting has already been applied by Stream.Open; every field is
// concrete.
type SinkConfig struct {
	SampleRate int
	Format     Format
	Channels   int

	// BufferCapacityFrames is the requested total buffer capacity. Zero lets
	// the sink choose.
	BufferCapacityFrames int32
}

// Sink is the capability surface of the lower-level blocking audio sink. The
// sink buffers and renders audio; the stream core only drives it.
//
// Start, Pause, Stop and Flush are requests: they take effect some
// unspecified time later. Progress is observed through Position, HasStarted
// and Stopped.
type Sink interface {
	Start() error
	Pause() error
	Stop() error
	Flush() error

	// Write delivers whole frames of audio bytes. In blocking mode it waits
	// until the sink accepts data; otherwise it accepts as many whole frames
	// as fit and reports ErrWouldBlock when none do. The returned count is a
	// whole-frame multiple of bytes.
	Write(p []byte, blocking bool) (int, error)

	// Position returns the playback position in frames, wrapping at the
	// position modulus. It resets to zero on flush and stop.
	Position() (uint32, error)

	// HasStarted reports whether playback has actually begun after Start.
	HasStarted() bool

	// Stopped reports whether the sink is no longer consuming. It may become
	// true before buffered audio has finished draining.
	Stopped() bool

	// TimestampSample returns the most recent (position, time) pairs per
	// timebase. It fails if the sink has not rendered anything yet.
	TimestampSample() (TimestampSample, error)

	UnderrunCount() uint32

	// SetBufferSizeFrames adjusts the writable buffer size below the fixed
	// capacity and returns the actual value after clamping.
	SetBufferSizeFrames(frames int32) (int32, error)
	BufferSizeFrames() int32

	// FrameCount is the fixed total buffer capacity in frames.
	FrameCount() int32

	ChannelCount() int
	SampleRate() int
	Format() Format

	Close() error
}

// SinkOpener constructs a sink from a negotiated configuration. The stream
// core is handed an opener rather than a sink so that Open owns construction
// and rollback.
type SinkOpener interface {
	OpenSink(cfg SinkConfig) (Sink, error)
}

// SinkOpenerFunc adapts a function to the SinkOpener interface.
type SinkOpenerFunc func(cfg SinkConfig) (Sink, error)

// OpenSink calls f.
func (f SinkOpenerFunc) OpenSink(cfg SinkConfig) (Sink, error) {
	return f(cfg)
}
