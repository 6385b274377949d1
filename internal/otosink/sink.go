// ABOUTME: Audio sink implementation over the oto library
// ABOUTME: Device-style ring buffer with wrapping position and underrun counts
package otosink

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/Resonate-Protocol/playout-go/pkg/stream"
)

const defaultCapacityFrames = 8 * 1024

// oto allows one context per process, so it is shared across sinks.
var (
	ctxMu      sync.Mutex
	sharedCtx  *oto.Context
	sharedRate int
	sharedCh   int
	sharedFmt  oto.Format
)

// Sink is a stream.Sink backed by an oto player pulling from an internal
// ring buffer. The player consumes frames in its own goroutine; the wrapped
// position counter advances with consumption and resets to zero on flush and
// stop, like a device-managed track.
type Sink struct {
	mu   sync.Mutex
	cond *sync.Cond

	sampleRate    int
	format        stream.Format
	channels      int
	bytesPerFrame int

	capacityFrames int32
	bufferFrames   int32 // writable watermark, <= capacityFrames

	ring []byte
	head int // read offset in bytes
	fill int // buffered bytes

	playing    bool
	hasStarted bool
	position   uint32 // frames consumed, wraps naturally
	underruns  uint32
	closed     bool

	sample     stream.TimestampSample
	haveSample bool

	player *oto.Player
	epoch  time.Time
}

// Open constructs a sink and attaches it to the audio device. It satisfies
// stream.SinkOpenerFunc.
func Open(cfg stream.SinkConfig) (stream.Sink, error) {
	s, err := newSink(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.attachDevice(); err != nil {
		return nil, err
	}
	log.Printf("otosink: opened %dHz %s %dch, capacity %d frames",
		s.sampleRate, s.format, s.channels, s.capacityFrames)
	return s, nil
}

// newSink builds the device-independent part. Tests drive Read directly in
// place of the oto player.
func newSink(cfg stream.SinkConfig) (*Sink, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("otosink: sample rate %d out of range", cfg.SampleRate)
	}
	if cfg.Channels <= 0 {
		return nil, fmt.Errorf("otosink: channel count %d out of range", cfg.Channels)
	}
	if _, err := otoFormat(cfg.Format); err != nil {
		return nil, err
	}

	capacity := cfg.BufferCapacityFrames
	if capacity <= 0 {
		capacity = defaultCapacityFrames
	}

	s := &Sink{
		sampleRate:     cfg.SampleRate,
		format:         cfg.Format,
		channels:       cfg.Channels,
		bytesPerFrame:  cfg.Format.BytesPerSample() * cfg.Channels,
		capacityFrames: capacity,
		bufferFrames:   capacity,
		epoch:          time.Now(),
	}
	s.ring = make([]byte, int(capacity)*s.bytesPerFrame)
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

func otoFormat(f stream.Format) (oto.Format, error) {
	switch f {
	case stream.FormatInt16:
		return oto.FormatSignedInt16LE, nil
	case stream.FormatFloat32:
		return oto.FormatFloat32LE, nil
	default:
		return 0, fmt.Errorf("otosink: format %s not supported by oto", f)
	}
}

func (s *Sink) attachDevice() error {
	format, err := otoFormat(s.format)
	if err != nil {
		return err
	}

	ctxMu.Lock()
	defer ctxMu.Unlock()
	if sharedCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   s.sampleRate,
			ChannelCount: s.channels,
			Format:       format,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			return fmt.Errorf("otosink: create context: %w", err)
		}
		<-ready
		sharedCtx = ctx
		sharedRate = s.sampleRate
		sharedCh = s.channels
		sharedFmt = format
	} else if sharedRate != s.sampleRate || sharedCh != s.channels || sharedFmt != format {
		return fmt.Errorf("otosink: context already open with %dHz %dch, cannot reopen with %dHz %dch",
			sharedRate, sharedCh, s.sampleRate, s.channels)
	}

	s.player = sharedCtx.NewPlayer(s)
	return nil
}

// Read is the device pull path: the oto player drains the ring here. An
// empty ring while playing produces silence and counts an underrun. The
// position and timestamp sample advance only with consumed frames.
func (s *Sink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.EOF
	}

	// Whole frames only.
	want := len(p) - len(p)%s.bytesPerFrame
	if want == 0 {
		return 0, nil
	}

	if !s.playing {
		zero(p[:want])
		return want, nil
	}
	s.hasStarted = true

	n := s.fill
	if n > want {
		n = want
	}
	n -= n % s.bytesPerFrame
	for i := 0; i < n; i++ {
		p[i] = s.ring[(s.head+i)%len(s.ring)]
	}
	s.head = (s.head + n) % len(s.ring)
	s.fill -= n
	zero(p[n:want])

	if n < want {
		s.underruns++
	}
	if n > 0 {
		s.position += uint32(n / s.bytesPerFrame)
		s.recordTimestampLocked()
		s.cond.Broadcast()
	}
	return want, nil
}

// recordTimestampLocked captures the current (position, time) pair. Without
// suspend tracking the monotonic and boottime bases coincide.
func (s *Sink) recordTimestampLocked() {
	nanos := time.Since(s.epoch).Nanoseconds()
	s.sample.Record(stream.TimebaseMonotonic, int64(s.position), nanos)
	s.sample.Record(stream.TimebaseBoottime, int64(s.position), nanos)
	s.haveSample = true
}

func zero(p []byte) {
	for i := range p {
		p[i] = 0
	}
}

// Start begins consumption. Playback is observable via HasStarted once the
// device pulls for the first time.
func (s *Sink) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("otosink: start after close")
	}
	s.playing = true
	s.hasStarted = false
	s.mu.Unlock()

	if s.player != nil {
		s.player.Play()
	}
	return nil
}

// Pause suspends consumption without discarding buffered audio.
func (s *Sink) Pause() error {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()

	if s.player != nil {
		s.player.Pause()
	}
	return nil
}

// Stop halts consumption and resets the position counter to zero.
func (s *Sink) Stop() error {
	s.mu.Lock()
	s.playing = false
	s.hasStarted = false
	s.position = 0
	s.mu.Unlock()

	if s.player != nil {
		s.player.Pause()
	}
	return nil
}

// Flush discards buffered audio and resets the position counter to zero.
func (s *Sink) Flush() error {
	s.mu.Lock()
	s.head = 0
	s.fill = 0
	s.position = 0
	s.mu.Unlock()
	s.cond.Broadcast()
	return nil
}

// Write appends whole frames to the ring. Blocking mode waits until all of p
// is accepted; non-blocking mode accepts what fits and reports
// stream.ErrWouldBlock when nothing does.
func (s *Sink) Write(p []byte, blocking bool) (int, error) {
	if len(p)%s.bytesPerFrame != 0 {
		return 0, fmt.Errorf("otosink: write of %d bytes is not a whole-frame multiple", len(p))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for len(p) > 0 {
		if s.closed {
			return written, fmt.Errorf("otosink: write after close")
		}
		free := int(s.bufferFrames)*s.bytesPerFrame - s.fill
		if free < 0 {
			free = 0
		}
		n := len(p)
		if n > free {
			n = free
		}
		n -= n % s.bytesPerFrame
		if n == 0 {
			if !blocking {
				if written == 0 {
					return 0, stream.ErrWouldBlock
				}
				return written, nil
			}
			s.cond.Wait()
			continue
		}
		tail := (s.head + s.fill) % len(s.ring)
		for i := 0; i < n; i++ {
			s.ring[(tail+i)%len(s.ring)] = p[i]
		}
		s.fill += n
		written += n
		p = p[n:]
		if !blocking {
			break
		}
	}
	return written, nil
}

// Position returns the wrapped count of frames consumed by the device.
func (s *Sink) Position() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("otosink: position after close")
	}
	return s.position, nil
}

// HasStarted reports whether the device has pulled since the last Start.
func (s *Sink) HasStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasStarted
}

// Stopped reports whether the device is not consuming.
func (s *Sink) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.playing
}

// TimestampSample returns the latest per-base (position, time) pairs. It
// fails until the device has consumed at least one frame.
func (s *Sink) TimestampSample() (stream.TimestampSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveSample {
		return stream.TimestampSample{}, fmt.Errorf("otosink: nothing rendered: %w", stream.ErrTimestampUnavailable)
	}
	return s.sample, nil
}

func (s *Sink) UnderrunCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.underruns
}

// SetBufferSizeFrames adjusts the writable watermark below the fixed
// capacity and returns the clamped actual.
func (s *Sink) SetBufferSizeFrames(frames int32) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frames < 1 {
		frames = 1
	}
	if frames > s.capacityFrames {
		frames = s.capacityFrames
	}
	s.bufferFrames = frames
	s.cond.Broadcast()
	return frames, nil
}

func (s *Sink) BufferSizeFrames() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bufferFrames
}

func (s *Sink) FrameCount() int32 {
	return s.capacityFrames
}

func (s *Sink) ChannelCount() int     { return s.channels }
func (s *Sink) SampleRate() int       { return s.sampleRate }
func (s *Sink) Format() stream.Format { return s.format }

// Close releases the player. The shared oto context stays alive for the
// process; oto does not support tearing it down.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.playing = false
	s.mu.Unlock()
	s.cond.Broadcast()

	if s.player != nil {
		if err := s.player.Close(); err != nil {
			return fmt.Errorf("otosink: close player: %w", err)
		}
	}
	return nil
}
