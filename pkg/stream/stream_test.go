// ABOUTME: Tests for the stream state machine and write path
// ABOUTME: Drives a fake sink through open/start/pause/flush/stop lifecycles
package stream

import (
	"errors"
	"testing"
	"time"
)

// fakeSink is a scriptable sink. Tests flip the flags the real device would
// set asynchronously.
type fakeSink struct {
	cfg SinkConfig

	sampleRate int
	format     Format
	channels   int
	capacity   int32
	bufferSize int32

	hasStarted bool
	stopped    bool
	position   uint32
	posErr     error

	acceptBytes int // byte budget for non-blocking writes, -1 accepts all
	writeErr    error

	sample    TimestampSample
	sampleErr error

	underruns uint32
	closed    bool

	startCalls, pauseCalls, stopCalls, flushCalls int
}

func newFakeSink(cfg SinkConfig) *fakeSink {
	capacity := cfg.BufferCapacityFrames
	if capacity == 0 {
		capacity = 1920
	}
	return &fakeSink{
		cfg:         cfg,
		sampleRate:  cfg.SampleRate,
		format:      cfg.Format,
		channels:    cfg.Channels,
		capacity:    capacity,
		bufferSize:  capacity,
		stopped:     true,
		acceptBytes: -1,
	}
}

func (f *fakeSink) Start() error { f.startCalls++; f.stopped = false; return nil }
func (f *fakeSink) Pause() error { f.pauseCalls++; return nil }
func (f *fakeSink) Stop() error  { f.stopCalls++; return nil }
func (f *fakeSink) Flush() error { f.flushCalls++; return nil }

func (f *fakeSink) Write(p []byte, blocking bool) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	n := len(p)
	if !blocking && f.acceptBytes >= 0 && f.acceptBytes < n {
		n = f.acceptBytes
	}
	if n == 0 {
		return 0, ErrWouldBlock
	}
	return n, nil
}

func (f *fakeSink) Position() (uint32, error) {
	if f.posErr != nil {
		return 0, f.posErr
	}
	return f.position, nil
}

func (f *fakeSink) HasStarted() bool { return f.hasStarted }
func (f *fakeSink) Stopped() bool    { return f.stopped }

func (f *fakeSink) TimestampSample() (TimestampSample, error) {
	if f.sampleErr != nil {
		return TimestampSample{}, f.sampleErr
	}
	return f.sample, nil
}

func (f *fakeSink) UnderrunCount() uint32 { return f.underruns }

func (f *fakeSink) SetBufferSizeFrames(frames int32) (int32, error) {
	if frames > f.capacity {
		frames = f.capacity
	}
	if frames < 1 {
		frames = 1
	}
	f.bufferSize = frames
	return frames, nil
}

func (f *fakeSink) BufferSizeFrames() int32 { return f.bufferSize }
func (f *fakeSink) FrameCount() int32       { return f.capacity }
func (f *fakeSink) ChannelCount() int       { return f.channels }
func (f *fakeSink) SampleRate() int         { return f.sampleRate }
func (f *fakeSink) Format() Format          { return f.format }
func (f *fakeSink) Close() error            { f.closed = true; return nil }

// openStream opens a stream backed by a fresh fake sink and returns both.
func openStream(t *testing.T, cfg Config) (*Stream, *fakeSink) {
	t.Helper()
	var sink *fakeSink
	s := New(SinkOpenerFunc(func(sc SinkConfig) (Sink, error) {
		sink = newFakeSink(sc)
		return sink, nil
	}))
	if err := s.Open(cfg); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, sink
}

// startStream drives a freshly opened stream into the started state.
func startStream(t *testing.T, s *Stream, sink *fakeSink) {
	t.Helper()
	if err := s.RequestStart(); err != nil {
		t.Fatalf("RequestStart failed: %v", err)
	}
	sink.hasStarted = true
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StateStarted {
		t.Fatalf("expected started, got %s", s.State())
	}
}

func TestOpenDefaults(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()

	if sink.cfg.Channels != 2 {
		t.Errorf("expected channels to default to 2, got %d", sink.cfg.Channels)
	}
	if sink.cfg.Format != FormatFloat32 {
		t.Errorf("expected format to default to float32, got %s", sink.cfg.Format)
	}
	if s.ChannelCount() != 2 {
		t.Errorf("expected negotiated channel count 2, got %d", s.ChannelCount())
	}
	if s.State() != StateOpen {
		t.Errorf("expected open state, got %s", s.State())
	}
}

func TestOpenReadsBackNegotiatedValues(t *testing.T) {
	var sink *fakeSink
	s := New(SinkOpenerFunc(func(sc SinkConfig) (Sink, error) {
		sink = newFakeSink(sc)
		sink.sampleRate = 44100 // device refuses the requested rate
		return sink, nil
	}))
	defer s.Close()

	if err := s.Open(Config{SampleRate: 48000, Format: FormatInt16, Channels: 2}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.SampleRate() != 44100 {
		t.Errorf("expected negotiated rate 44100, got %d", s.SampleRate())
	}
}

func TestOpenFailureLeavesUninitialized(t *testing.T) {
	s := New(SinkOpenerFunc(func(sc SinkConfig) (Sink, error) {
		return nil, errors.New("no device")
	}))

	if err := s.Open(Config{SampleRate: 48000}); err == nil {
		t.Fatal("expected Open to fail")
	}
	if s.State() != StateUninitialized {
		t.Errorf("expected uninitialized after failed open, got %s", s.State())
	}
	// Close after a failed open is safe.
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenTwiceFails(t *testing.T) {
	s, _ := openStream(t, Config{SampleRate: 48000})
	defer s.Close()

	if err := s.Open(Config{SampleRate: 48000}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestStartRequiresSink(t *testing.T) {
	s := New(SinkOpenerFunc(func(sc SinkConfig) (Sink, error) {
		return nil, errors.New("no device")
	}))
	if err := s.RequestStart(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestStartReachesStartedOnlyAfterSinkFlag(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()

	if err := s.RequestStart(); err != nil {
		t.Fatalf("RequestStart failed: %v", err)
	}
	if s.State() != StateStarting {
		t.Fatalf("expected starting, got %s", s.State())
	}
	if sink.startCalls != 1 {
		t.Errorf("expected 1 start call, got %d", sink.startCalls)
	}

	// Sink has not reported started yet.
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StateStarting {
		t.Errorf("expected to stay starting, got %s", s.State())
	}

	sink.hasStarted = true
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StateStarted {
		t.Errorf("expected started, got %s", s.State())
	}
}

func TestPauseFromOpenFails(t *testing.T) {
	s, _ := openStream(t, Config{SampleRate: 48000})
	defer s.Close()

	if err := s.RequestPause(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if s.State() != StateOpen {
		t.Errorf("expected state unchanged, got %s", s.State())
	}
}

func TestPauseConvergesAfterTwoStablePolls(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()
	startStream(t, s, sink)

	sink.position = 100
	if err := s.RequestPause(); err != nil {
		t.Fatalf("RequestPause failed: %v", err)
	}
	if s.State() != StatePausing {
		t.Fatalf("expected pausing, got %s", s.State())
	}
	if sink.pauseCalls != 1 {
		t.Errorf("expected 1 pause call, got %d", sink.pauseCalls)
	}

	// Sink reports stopped but audio is still draining.
	sink.stopped = true
	sink.position = 140
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StatePausing {
		t.Errorf("expected to stay pausing while draining, got %s", s.State())
	}

	// Position stopped advancing: second stable poll settles.
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StatePaused {
		t.Errorf("expected paused, got %s", s.State())
	}
}

func TestPausePollErrorLeavesState(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()
	startStream(t, s, sink)

	if err := s.RequestPause(); err != nil {
		t.Fatalf("RequestPause failed: %v", err)
	}
	sink.stopped = true
	sink.posErr = errors.New("device gone")

	if err := s.UpdateState(); err == nil {
		t.Fatal("expected UpdateState to fail")
	}
	if s.State() != StatePausing {
		t.Errorf("expected state unchanged on poll failure, got %s", s.State())
	}

	// Driver retries after the fault clears.
	sink.posErr = nil
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState retry failed: %v", err)
	}
}

func TestFlushOnlyFromPaused(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()
	startStream(t, s, sink)

	if err := s.RequestFlush(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if s.State() != StateStarted {
		t.Errorf("expected state unchanged, got %s", s.State())
	}
}

func pauseStream(t *testing.T, s *Stream, sink *fakeSink) {
	t.Helper()
	if err := s.RequestPause(); err != nil {
		t.Fatalf("RequestPause failed: %v", err)
	}
	sink.stopped = true
	// Two polls with a stable position.
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StatePaused {
		t.Fatalf("expected paused, got %s", s.State())
	}
}

func TestFlushFoldsOutstandingAndRestartsFold(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000, Format: FormatInt16, Channels: 2})
	defer s.Close()
	startStream(t, s, sink)

	buf := make([]byte, 100*s.BytesPerFrame())
	n, err := s.Write(buf, 100, time.Second)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 100 {
		t.Fatalf("expected 100 frames written, got %d", n)
	}

	// Sink consumed 30 frames before the pause.
	sink.position = 30
	if got := s.FramesRead(); got != 30 {
		t.Fatalf("expected 30 frames read, got %d", got)
	}
	pauseStream(t, s, sink)

	if err := s.RequestFlush(); err != nil {
		t.Fatalf("RequestFlush failed: %v", err)
	}
	if s.State() != StateFlushing {
		t.Fatalf("expected flushing, got %s", s.State())
	}
	if sink.flushCalls != 1 {
		t.Errorf("expected 1 flush call, got %d", sink.flushCalls)
	}
	if s.FramesRead() != s.FramesWritten() {
		t.Errorf("expected read == written after flush fold, got read=%d written=%d",
			s.FramesRead(), s.FramesWritten())
	}

	// Flush completion is signalled by the position resetting to zero.
	sink.position = 5
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StateFlushing {
		t.Errorf("expected to stay flushing at nonzero position, got %s", s.State())
	}
	sink.position = 0
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StateFlushed {
		t.Errorf("expected flushed, got %s", s.State())
	}

	// The next fold starts from zero: restarting and consuming 10 frames
	// adds exactly 10 on top of the folded total.
	folded := s.FramesRead()
	sink.stopped = false
	sink.hasStarted = false
	if err := s.RequestStart(); err != nil {
		t.Fatalf("RequestStart failed: %v", err)
	}
	sink.hasStarted = true
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	sink.position = 10
	if got := s.FramesRead(); got != folded+10 {
		t.Errorf("expected %d frames read after restart, got %d", folded+10, got)
	}
}

func TestStopFromAnyStateAndConvergence(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()

	// Stop straight from open is allowed.
	if err := s.RequestStop(); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}
	if s.State() != StateStopping {
		t.Fatalf("expected stopping, got %s", s.State())
	}
	if sink.stopCalls != 1 {
		t.Errorf("expected 1 stop call, got %d", sink.stopCalls)
	}

	sink.stopped = false
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StateStopping {
		t.Errorf("expected to stay stopping, got %s", s.State())
	}
	sink.stopped = true
	if err := s.UpdateState(); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("expected stopped, got %s", s.State())
	}
}

func TestStopForcesCounterEquality(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000, Format: FormatFloat32, Channels: 2})
	defer s.Close()
	startStream(t, s, sink)

	buf := make([]byte, 200*s.BytesPerFrame())
	if _, err := s.Write(buf, 200, time.Second); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.RequestStop(); err != nil {
		t.Fatalf("RequestStop failed: %v", err)
	}
	if s.FramesRead() != s.FramesWritten() {
		t.Errorf("expected read == written after stop, got read=%d written=%d",
			s.FramesRead(), s.FramesWritten())
	}
}

func TestUpdateStateNoopInSettledStates(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()

	if err := s.UpdateState(); err != nil {
		t.Errorf("UpdateState in open failed: %v", err)
	}
	if s.State() != StateOpen {
		t.Errorf("expected open, got %s", s.State())
	}

	startStream(t, s, sink)
	if err := s.UpdateState(); err != nil {
		t.Errorf("UpdateState in started failed: %v", err)
	}
	if s.State() != StateStarted {
		t.Errorf("expected started, got %s", s.State())
	}
}

func TestWriteNonBlockingFullReturnsZero(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000, Format: FormatInt16, Channels: 2})
	defer s.Close()

	sink.acceptBytes = 0
	buf := make([]byte, 64*s.BytesPerFrame())
	n, err := s.Write(buf, 64, 0)
	if err != nil {
		t.Fatalf("expected no error on would-block, got %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 frames, got %d", n)
	}
	if s.FramesWritten() != 0 {
		t.Errorf("expected framesWritten unchanged, got %d", s.FramesWritten())
	}
}

func TestWritePartialAccept(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000, Format: FormatInt16, Channels: 2})
	defer s.Close()

	// Sink has room for 40 frames worth of bytes.
	sink.acceptBytes = 40 * s.BytesPerFrame()
	buf := make([]byte, 100*s.BytesPerFrame())
	n, err := s.Write(buf, 100, 0)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 40 {
		t.Errorf("expected 40 frames accepted, got %d", n)
	}
	if s.FramesWritten() != 40 {
		t.Errorf("expected framesWritten 40, got %d", s.FramesWritten())
	}
}

func TestWriteSinkErrorPropagates(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()

	sinkErr := errors.New("device invalidated")
	sink.writeErr = sinkErr
	buf := make([]byte, 10*s.BytesPerFrame())
	if _, err := s.Write(buf, 10, time.Second); !errors.Is(err, sinkErr) {
		t.Errorf("expected sink error to propagate, got %v", err)
	}
	if s.FramesWritten() != 0 {
		t.Errorf("expected framesWritten unchanged, got %d", s.FramesWritten())
	}
}

func TestWriteShortBufferFails(t *testing.T) {
	s, _ := openStream(t, Config{SampleRate: 48000, Format: FormatInt16, Channels: 2})
	defer s.Close()

	buf := make([]byte, 10)
	if _, err := s.Write(buf, 100, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestFramesToBytesOverflow(t *testing.T) {
	if _, err := framesToBytes(1<<30, 8); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if _, err := framesToBytes(-1, 4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange for negative frames, got %v", err)
	}
	n, err := framesToBytes(100, 4)
	if err != nil || n != 400 {
		t.Errorf("expected 400 bytes, got %d (%v)", n, err)
	}
}

func TestFramesReadPollsOnlyWhileAdvancing(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()
	startStream(t, s, sink)

	sink.position = 500
	if got := s.FramesRead(); got != 500 {
		t.Fatalf("expected 500 while started, got %d", got)
	}

	pauseStream(t, s, sink)

	// Paused: the position is no longer polled.
	sink.position = 900
	if got := s.FramesRead(); got != 500 {
		t.Errorf("expected last known 500 while paused, got %d", got)
	}
}

func TestFramesReadNonDecreasing(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()
	startStream(t, s, sink)

	var last int64
	for _, pos := range []uint32{10, 400, 0xFFFFFFF0, 12, 900} {
		sink.position = pos
		got := s.FramesRead()
		if got < last {
			t.Errorf("frames read decreased: %d after %d (raw %d)", got, last, pos)
		}
		last = got
	}
}

func TestTimestampClockMapping(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()

	sink.sample.Record(TimebaseMonotonic, 4800, 2_000_000_000)

	pos, ns, err := s.Timestamp(ClockMonotonic)
	if err != nil {
		t.Fatalf("Timestamp failed: %v", err)
	}
	if pos != 4800 || ns != 2_000_000_000 {
		t.Errorf("expected (4800, 2000000000), got (%d, %d)", pos, ns)
	}

	// No boottime sample was ever recorded.
	if _, _, err := s.Timestamp(ClockBoottime); !errors.Is(err, ErrTimestampUnavailable) {
		t.Errorf("expected ErrTimestampUnavailable, got %v", err)
	}

	if _, _, err := s.Timestamp(ClockBase(42)); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue, got %v", err)
	}
}

func TestTimestampSinkFailurePropagates(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	defer s.Close()

	sinkErr := errors.New("no timestamp yet")
	sink.sampleErr = sinkErr
	if _, _, err := s.Timestamp(ClockMonotonic); !errors.Is(err, sinkErr) {
		t.Errorf("expected sink error to propagate, got %v", err)
	}
}

func TestFramesPerBurstFixed(t *testing.T) {
	small, _ := openStream(t, Config{SampleRate: 48000, BufferCapacityFrames: 256})
	defer small.Close()
	large, _ := openStream(t, Config{SampleRate: 48000, BufferCapacityFrames: 16384})
	defer large.Close()

	if small.GetFramesPerBurst() != 192 || large.GetFramesPerBurst() != 192 {
		t.Errorf("expected fixed burst 192, got %d and %d",
			small.GetFramesPerBurst(), large.GetFramesPerBurst())
	}
}

func TestBufferSizeQueries(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000, BufferCapacityFrames: 4096})
	defer s.Close()

	if got := s.BufferCapacity(); got != 4096 {
		t.Errorf("expected capacity 4096, got %d", got)
	}
	got, err := s.SetBufferSize(99999)
	if err != nil {
		t.Fatalf("SetBufferSize failed: %v", err)
	}
	if got != 4096 {
		t.Errorf("expected clamp to capacity 4096, got %d", got)
	}
	if s.BufferSize() != 4096 {
		t.Errorf("expected buffer size 4096, got %d", s.BufferSize())
	}

	sink.underruns = 3
	if s.XRunCount() != 3 {
		t.Errorf("expected 3 underruns, got %d", s.XRunCount())
	}
}

func TestCloseIdempotentAndReleasesSink(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !sink.closed {
		t.Error("expected sink to be released")
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestCloseFromMidLifecycle(t *testing.T) {
	s, sink := openStream(t, Config{SampleRate: 48000})
	startStream(t, s, sink)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("expected closed, got %s", s.State())
	}
}
