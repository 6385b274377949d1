// ABOUTME: Bubbletea model for the stream monitor TUI
// ABOUTME: Renders lifecycle state, frame counters and sink telemetry
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	// Session
	sessionID string

	// Format
	sampleRate int
	channels   int
	format     string

	// Lifecycle
	state string

	// Frame accounting
	framesWritten int64
	framesRead    int64
	outstanding   int64

	// Sink telemetry
	underruns      int32
	bufferSize     int32
	bufferCapacity int32

	// Timestamp
	framePosition int64
	timeNanos     int64

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	control *Control
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderCounters()
	s += m.renderSink()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders session and lifecycle state
func (m Model) renderHeader() string {
	return fmt.Sprintf(`┌─ Playout Monitor ────────────────────────────────────┐
│ Session: %-43s │
│ State:   %-43s │
│ Format:  %dHz %s %dch%-31s │
├──────────────────────────────────────────────────────┤
`, truncate(m.sessionID, 43), m.state, m.sampleRate, m.format, m.channels, "")
}

// renderCounters renders frame accounting
func (m Model) renderCounters() string {
	return fmt.Sprintf("│ Written:     %-39d │\n"+
		"│ Read:        %-39d │\n"+
		"│ Outstanding: %-39d │\n",
		m.framesWritten, m.framesRead, m.outstanding)
}

// renderSink renders sink telemetry
func (m Model) renderSink() string {
	fillPct := 0
	if m.bufferCapacity > 0 {
		fillPct = int(m.outstanding * 100 / int64(m.bufferCapacity))
		if fillPct > 100 {
			fillPct = 100
		}
		if fillPct < 0 {
			fillPct = 0
		}
	}
	bar := renderBar(fillPct, 100, 10)

	return fmt.Sprintf("│                                                      │\n"+
		"│ Buffer: [%s] %d/%d frames%-17s │\n"+
		"│ Underruns: %-41d │\n",
		bar, m.bufferSize, m.bufferCapacity, "", m.underruns)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ space:Pause/Resume  f:Flush  s:Stop  d:Debug  q:Quit │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders the raw timestamp pair
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Timestamp frame: %-33d │
│   Timestamp nanos: %-33d │
`, m.framePosition, m.timeNanos)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.control != nil {
			select {
			case m.control.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case " ":
		m.sendRequest(RequestPauseResume)
	case "f":
		m.sendRequest(RequestFlush)
	case "s":
		m.sendRequest(RequestStop)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) sendRequest(r Request) {
	if m.control == nil {
		return
	}
	select {
	case m.control.Requests <- r:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.SessionID != "" {
		m.sessionID = msg.SessionID
	}
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.SampleRate != 0 {
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
		m.format = msg.Format
	}
	m.framesWritten = msg.FramesWritten
	m.framesRead = msg.FramesRead
	m.outstanding = msg.FramesWritten - msg.FramesRead
	m.underruns = msg.Underruns
	if msg.BufferCapacity != 0 {
		m.bufferSize = msg.BufferSize
		m.bufferCapacity = msg.BufferCapacity
	}
	if msg.TimeNanos != 0 {
		m.framePosition = msg.FramePosition
		m.timeNanos = msg.TimeNanos
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	SessionID      string
	State          string
	SampleRate     int
	Channels       int
	Format         string
	FramesWritten  int64
	FramesRead     int64
	Underruns      int32
	BufferSize     int32
	BufferCapacity int32
	FramePosition  int64
	TimeNanos      int64
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
