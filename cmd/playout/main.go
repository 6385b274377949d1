// ABOUTME: Entry point for the playout demo player
// ABOUTME: Decodes an MP3 and drives the stream lifecycle at a poll cadence
package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hajimehoshi/go-mp3"

	"github.com/Resonate-Protocol/playout-go/internal/config"
	"github.com/Resonate-Protocol/playout-go/internal/otosink"
	"github.com/Resonate-Protocol/playout-go/internal/ui"
	"github.com/Resonate-Protocol/playout-go/internal/version"
	"github.com/Resonate-Protocol/playout-go/pkg/stream"
)

var (
	configPath = flag.String("config", "", "YAML config file path")
	audioFile  = flag.String("audio", "", "MP3 file to play (required)")
	logFile    = flag.String("log-file", "playout.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	if *audioFile == "" {
		log.Fatal("no audio file; use -audio <file.mp3>")
	}

	cfg := &config.Config{}
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("error loading config: %v", err)
		}
	}
	useTUI := (cfg.Playback.TUI || *configPath == "") && !*noTUI
	pollInterval := time.Duration(cfg.Playback.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	audio, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("error opening audio file: %v", err)
	}
	defer audio.Close()

	decoder, err := mp3.NewDecoder(audio)
	if err != nil {
		log.Fatalf("error decoding %s: %v", *audioFile, err)
	}

	// go-mp3 always yields 16-bit stereo at the source rate. The decoder
	// wins over any configured device rate.
	if cfg.Device.SampleRate != 0 && cfg.Device.SampleRate != decoder.SampleRate() {
		log.Printf("configured rate %d overridden by source rate %d",
			cfg.Device.SampleRate, decoder.SampleRate())
	}

	s := stream.New(stream.SinkOpenerFunc(otosink.Open))
	err = s.Open(stream.Config{
		SampleRate:           decoder.SampleRate(),
		Format:               stream.FormatInt16,
		Channels:             2,
		BufferCapacityFrames: cfg.Device.BufferCapacityFrames,
	})
	if err != nil {
		log.Fatalf("error opening stream: %v", err)
	}
	defer s.Close()

	log.Printf("%s %s playing %s: %dHz, session %s",
		version.Product, version.Version, *audioFile, s.SampleRate(), s.ID())

	if err := s.RequestStart(); err != nil {
		log.Fatalf("error starting stream: %v", err)
	}

	var program *tea.Program
	ctrl := ui.NewControl()
	if useTUI {
		program, err = ui.Run(ctrl)
		if err != nil {
			log.Fatalf("error starting TUI: %v", err)
		}
	}

	// Writer: feed decoded frames.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		writeFrames(s, decoder, cfg.Playback.NonBlocking)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		drive(s, ctrl, program, pollInterval, writerDone, sigCh)
	}()

	if program != nil {
		if _, err := program.Run(); err != nil {
			log.Printf("TUI error: %v", err)
		}
		// TUI quit acts like an interrupt.
		select {
		case sigCh <- syscall.SIGINT:
		default:
		}
	}
	<-done
	log.Printf("done: wrote %d frames, read %d, underruns %d",
		s.FramesWritten(), s.FramesRead(), s.XRunCount())
}

// writeFrames pushes decoded PCM into the stream until EOF.
func writeFrames(s *stream.Stream, src io.Reader, nonBlocking bool) {
	timeout := time.Second
	if nonBlocking {
		timeout = 0
	}
	buf := make([]byte, int(s.GetFramesPerBurst())*s.BytesPerFrame())
	for {
		n, err := io.ReadFull(src, buf)
		if n == 0 {
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Printf("decode error: %v", err)
			}
			return
		}
		frames := int32(n / s.BytesPerFrame())
		pending := buf[:int(frames)*s.BytesPerFrame()]
		for len(pending) > 0 {
			written, werr := s.Write(pending, int32(len(pending)/s.BytesPerFrame()), timeout)
			if werr != nil {
				log.Printf("write error: %v", werr)
				return
			}
			if written == 0 {
				// Sink full in non-blocking mode; back off a burst.
				time.Sleep(4 * time.Millisecond)
				continue
			}
			pending = pending[int(written)*s.BytesPerFrame():]
		}
		if err != nil {
			return // EOF after a short final read
		}
	}
}

// drive is the single state machine driver: it polls UpdateState, applies
// keyboard requests and handles shutdown.
func drive(s *stream.Stream, ctrl *ui.Control, program *tea.Program, pollInterval time.Duration, writerDone <-chan struct{}, sigCh <-chan os.Signal) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	writerRunning := true
	for {
		select {
		case <-ticker.C:
			if err := s.UpdateState(); err != nil {
				log.Printf("update state: %v", err)
			}
			if program != nil {
				program.Send(statusOf(s))
			}
			if !writerRunning && s.FramesRead() >= s.FramesWritten() {
				// Drained: shut down.
				shutdown(s, program)
				return
			}
		case <-writerDone:
			writerRunning = false
			writerDone = nil
			log.Printf("writer finished, draining")
		case r := <-ctrl.Requests:
			applyRequest(s, r)
		case <-ctrl.Quit:
			shutdown(s, program)
			return
		case <-sigCh:
			shutdown(s, program)
			return
		}
	}
}

func applyRequest(s *stream.Stream, r ui.Request) {
	var err error
	switch r {
	case ui.RequestPauseResume:
		switch s.State() {
		case stream.StateStarting, stream.StateStarted:
			err = s.RequestPause()
		case stream.StatePaused, stream.StateFlushed, stream.StateStopped:
			err = s.RequestStart()
		}
	case ui.RequestFlush:
		err = s.RequestFlush()
	case ui.RequestStop:
		err = s.RequestStop()
	}
	if err != nil {
		log.Printf("request failed: %v", err)
	}
}

// shutdown stops the stream and polls until the sink converges.
func shutdown(s *stream.Stream, program *tea.Program) {
	if err := s.RequestStop(); err != nil {
		log.Printf("stop: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for s.State() == stream.StateStopping && time.Now().Before(deadline) {
		if err := s.UpdateState(); err != nil {
			log.Printf("update state: %v", err)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if program != nil {
		program.Quit()
	}
}

func statusOf(s *stream.Stream) ui.StatusMsg {
	msg := ui.StatusMsg{
		SessionID:      s.ID().String(),
		State:          s.State().String(),
		SampleRate:     s.SampleRate(),
		Channels:       s.ChannelCount(),
		Format:         s.Format().String(),
		FramesWritten:  s.FramesWritten(),
		FramesRead:     s.FramesRead(),
		Underruns:      s.XRunCount(),
		BufferSize:     s.BufferSize(),
		BufferCapacity: s.BufferCapacity(),
	}
	if pos, ns, err := s.Timestamp(stream.ClockMonotonic); err == nil {
		msg.FramePosition = pos
		msg.TimeNanos = ns
	}
	return msg
}
