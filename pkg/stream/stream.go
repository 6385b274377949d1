// ABOUTME: Stream lifecycle core over a blocking audio sink
// ABOUTME: State machine, write path, frame accounting and timestamp queries
package stream

import (
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// FramesPerBurst is the nominal burst size of the sink. The sink offers no
// query for it, so it is a fixed constant.
const FramesPerBurst = 192

const defaultChannels = 2

// Config holds the requested stream parameters. Zero values mean
// unspecified: format defaults to float32, channels to stereo, buffer
// capacity to the sink's choice.
type Config struct {
	SampleRate           int
	Format               Format
	Channels             int
	BufferCapacityFrames int32
}

// Stream owns one audio session over a single sink instance. The sink is
// created in Open and released in Close; nothing outlives the stream.
//
// One goroutine may call Write while another drives Request*/UpdateState and
// the query methods. Concurrent drivers are a documented misuse.
type Stream struct {
	id     uuid.UUID
	opener SinkOpener
	sink   Sink
	state  atomic.Int32

	sampleRate      int
	format          Format
	samplesPerFrame int

	counters frameCounters

	// Wrapped positions captured by the driver goroutine only.
	positionWhenStarting uint32
	positionWhenPausing  uint32
}

// New creates a stream in the uninitialized state. The opener is invoked by
// Open to construct the sink.
func New(opener SinkOpener) *Stream {
	s := &Stream{
		id:     uuid.New(),
		opener: opener,
	}
	s.state.Store(int32(StateUninitialized))
	// A stream discarded while mid-lifecycle is a programming error worth
	// surfacing, though not a fatal one.
	runtime.SetFinalizer(s, func(s *Stream) {
		if st := s.State(); st != StateUninitialized && st != StateClosed {
			log.Printf("stream %s: discarded without close, state %s", s.id, st)
		}
	})
	return s
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) setState(st State) {
	s.state.Store(int32(st))
}

// Open constructs the sink with the requested parameters and enters the open
// state. An unspecified format defaults to float32 and unspecified channels
// to stereo. On failure any partially created sink is closed and the stream
// stays uninitialized. The sink is authoritative: the negotiated sample
// rate, format and channel count are read back from it.
func (s *Stream) Open(cfg Config) error {
	if s.State() != StateUninitialized {
		return fmt.Errorf("open while %s: %w", s.State(), ErrInvalidState)
	}

	sc := SinkConfig{
		SampleRate:           cfg.SampleRate,
		Format:               cfg.Format,
		Channels:             cfg.Channels,
		BufferCapacityFrames: cfg.BufferCapacityFrames,
	}
	if sc.Format == FormatUnspecified {
		sc.Format = FormatFloat32
	}
	if sc.Channels == 0 {
		sc.Channels = defaultChannels
	}

	sink, err := s.opener.OpenSink(sc)
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		return fmt.Errorf("open sink: %w", err)
	}

	s.sink = sink
	s.sampleRate = sink.SampleRate()
	s.format = sink.Format()
	s.samplesPerFrame = sink.ChannelCount()
	s.setState(StateOpen)

	log.Printf("stream %s: open %dHz %s %dch, capacity %d frames",
		s.id, s.sampleRate, s.format, s.samplesPerFrame, sink.FrameCount())
	return nil
}

// Close releases the sink and enters the closed state. It is idempotent and
// safe to call from any state, including after a failed Open.
func (s *Stream) Close() error {
	if s.State() == StateClosed {
		return nil
	}
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			log.Printf("stream %s: close sink: %v", s.id, err)
		}
		s.sink = nil
	}
	s.setState(StateClosed)
	return nil
}

// RequestStart asks the sink to begin playback and enters the starting
// state. The current wrapped position is recorded as a pre-start baseline.
func (s *Stream) RequestStart() error {
	if s.sink == nil {
		return fmt.Errorf("start without sink: %w", ErrInvalidState)
	}
	// Baseline so the driver can detect the track actually playing.
	pos, err := s.sink.Position()
	if err != nil {
		return fmt.Errorf("query position: %w", err)
	}
	s.positionWhenStarting = pos
	if err := s.sink.Start(); err != nil {
		return fmt.Errorf("start sink: %w", err)
	}
	s.setState(StateStarting)
	return nil
}

// RequestPause asks the sink to pause and enters the pausing state. Valid
// only while starting or started. The current wrapped position is snapshotted
// so UpdateState can detect when playback stops advancing.
func (s *Stream) RequestPause() error {
	if s.sink == nil {
		return fmt.Errorf("pause without sink: %w", ErrInvalidState)
	}
	if st := s.State(); st != StateStarting && st != StateStarted {
		log.Printf("stream %s: pause requested while %s", s.id, st)
		return fmt.Errorf("pause while %s: %w", st, ErrInvalidState)
	}
	s.setState(StatePausing)
	if err := s.sink.Pause(); err != nil {
		return fmt.Errorf("pause sink: %w", err)
	}
	pos, err := s.sink.Position()
	if err != nil {
		return fmt.Errorf("query position: %w", err)
	}
	s.positionWhenPausing = pos
	return nil
}

// RequestFlush discards buffered-but-unplayed audio and enters the flushing
// state. Valid only while paused. Outstanding frames are folded into the
// read count, so accounting shows them as consumed rather than dropped.
func (s *Stream) RequestFlush() error {
	if s.sink == nil {
		return fmt.Errorf("flush without sink: %w", ErrInvalidState)
	}
	if st := s.State(); st != StatePaused {
		return fmt.Errorf("flush while %s: %w", st, ErrInvalidState)
	}
	s.setState(StateFlushing)
	s.counters.foldOutstandingIntoRead()
	if err := s.sink.Flush(); err != nil {
		return fmt.Errorf("flush sink: %w", err)
	}
	s.counters.resetRawPhase()
	return nil
}

// RequestStop halts the sink from any state and enters the stopping state.
// Performs the same outstanding-frame fold as RequestFlush.
func (s *Stream) RequestStop() error {
	if s.sink == nil {
		return fmt.Errorf("stop without sink: %w", ErrInvalidState)
	}
	s.setState(StateStopping)
	s.counters.foldOutstandingIntoRead()
	if err := s.sink.Stop(); err != nil {
		return fmt.Errorf("stop sink: %w", err)
	}
	s.counters.resetRawPhase()
	return nil
}

// UpdateState polls the sink and advances any pending transition. States
// with nothing pending are a successful no-op. Sink query failures are
// returned with the state unchanged; the driver retries on its next poll.
func (s *Stream) UpdateState() error {
	switch s.State() {
	case StateStarting:
		if s.sink.HasStarted() {
			s.setState(StateStarted)
		}
	case StatePausing:
		if s.sink.Stopped() {
			pos, err := s.sink.Position()
			if err != nil {
				return fmt.Errorf("query position: %w", err)
			}
			// The stopped flag can lead the actual drain. Only settle once
			// two consecutive polls agree the position stopped advancing.
			if pos == s.positionWhenPausing {
				s.setState(StatePaused)
			}
			s.positionWhenPausing = pos
		}
	case StateFlushing:
		pos, err := s.sink.Position()
		if err != nil {
			return fmt.Errorf("query position: %w", err)
		}
		if pos == 0 {
			s.setState(StateFlushed)
		}
	case StateStopping:
		if s.sink.Stopped() {
			s.setState(StateStopped)
		}
	}
	return nil
}

// Write delivers numFrames of audio from buf to the sink. A timeout greater
// than zero selects blocking delivery, which suspends until the sink accepts
// the data; otherwise the write is non-blocking and returns 0 when the sink
// is full, which callers must treat as "try again later". Returns the number
// of whole frames accepted.
//
// The sink offers only "block until accepted" and "fail immediately", so the
// timeout carries no bounded-wait semantics beyond mode selection.
func (s *Stream) Write(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	if s.sink == nil {
		return 0, fmt.Errorf("write without sink: %w", ErrInvalidState)
	}
	bytesPerFrame := s.BytesPerFrame()
	numBytes, err := framesToBytes(numFrames, bytesPerFrame)
	if err != nil {
		return 0, err
	}
	if numBytes > len(buf) {
		return 0, fmt.Errorf("buffer holds %d bytes, need %d: %w", len(buf), numBytes, ErrOutOfRange)
	}

	blocking := timeout > 0
	n, err := s.sink.Write(buf[:numBytes], blocking)
	if errors.Is(err, ErrWouldBlock) {
		return 0, nil
	}
	if err != nil {
		log.Printf("stream %s: sink write failed: %v", s.id, err)
		return 0, fmt.Errorf("sink write: %w", err)
	}
	frames := int32(n / bytesPerFrame)
	s.counters.addWritten(int64(frames))
	return frames, nil
}

// FramesRead returns the monotonic count of frames the sink has consumed.
// The wrapped sink position is only polled while the sink is actively
// advancing (starting, started, stopping); otherwise the last folded value is
// returned unchanged. A failed poll also returns the last value; the next
// call retries.
func (s *Stream) FramesRead() int64 {
	switch s.State() {
	case StateStarting, StateStarted, StateStopping:
		if pos, err := s.sink.Position(); err == nil {
			return s.counters.foldRead(pos)
		}
	}
	return s.counters.framesRead()
}

// FramesWritten returns the cumulative count of frames accepted by Write.
func (s *Stream) FramesWritten() int64 {
	return s.counters.framesWritten()
}

// Timestamp returns the sink's best (frame position, time) pair for the
// requested clock base. Only the monotonic and boottime bases are supported.
func (s *Stream) Timestamp(clock ClockBase) (framePosition, timeNanos int64, err error) {
	if s.sink == nil {
		return 0, 0, fmt.Errorf("timestamp without sink: %w", ErrInvalidState)
	}
	sample, err := s.sink.TimestampSample()
	if err != nil {
		return 0, 0, fmt.Errorf("query timestamp: %w", err)
	}
	var tb Timebase
	switch clock {
	case ClockMonotonic:
		tb = TimebaseMonotonic
	case ClockBoottime:
		tb = TimebaseBoottime
	default:
		log.Printf("stream %s: unrecognized clock base %d", s.id, clock)
		return 0, 0, fmt.Errorf("clock base %d: %w", clock, ErrUnsupportedValue)
	}
	return sample.Best(tb)
}

// SetBufferSize requests a new writable buffer size and returns the actual
// value after the sink clamps it.
func (s *Stream) SetBufferSize(frames int32) (int32, error) {
	if s.sink == nil {
		return 0, fmt.Errorf("set buffer size without sink: %w", ErrInvalidState)
	}
	return s.sink.SetBufferSizeFrames(frames)
}

// BufferSize returns the current writable buffer size in frames.
func (s *Stream) BufferSize() int32 {
	if s.sink == nil {
		return 0
	}
	return s.sink.BufferSizeFrames()
}

// BufferCapacity returns the fixed total buffer capacity in frames.
func (s *Stream) BufferCapacity() int32 {
	if s.sink == nil {
		return 0
	}
	return s.sink.FrameCount()
}

// XRunCount returns the sink's underrun count.
func (s *Stream) XRunCount() int32 {
	if s.sink == nil {
		return 0
	}
	return int32(s.sink.UnderrunCount())
}

// GetFramesPerBurst returns the nominal burst size, independent of buffer
// capacity.
func (s *Stream) GetFramesPerBurst() int32 {
	return FramesPerBurst
}

// ID returns the session identifier used in log correlation.
func (s *Stream) ID() uuid.UUID {
	return s.id
}

// SampleRate returns the negotiated sample rate.
func (s *Stream) SampleRate() int {
	return s.sampleRate
}

// Format returns the negotiated sample format.
func (s *Stream) Format() Format {
	return s.format
}

// ChannelCount returns the negotiated samples per frame.
func (s *Stream) ChannelCount() int {
	return s.samplesPerFrame
}

// BytesPerFrame returns the storage width of one frame.
func (s *Stream) BytesPerFrame() int {
	return s.format.BytesPerSample() * s.samplesPerFrame
}

// framesToBytes converts a frame count to bytes, failing when the product is
// not representable in 32 bits.
func framesToBytes(frames int32, bytesPerFrame int) (int, error) {
	if frames < 0 || bytesPerFrame <= 0 {
		return 0, fmt.Errorf("%d frames of %d bytes: %w", frames, bytesPerFrame, ErrOutOfRange)
	}
	b := int64(frames) * int64(bytesPerFrame)
	if b > math.MaxInt32 {
		return 0, fmt.Errorf("%d frames overflow byte count: %w", frames, ErrOutOfRange)
	}
	return int(b), nil
}
