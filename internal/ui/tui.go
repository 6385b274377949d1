// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the stream monitor
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Request is a lifecycle transition asked for from the keyboard.
type Request int

const (
	RequestPauseResume Request = iota
	RequestFlush
	RequestStop
)

// Control holds channels carrying keyboard requests to the stream driver.
type Control struct {
	Requests chan Request
	Quit     chan struct{}
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Requests: make(chan Request, 10),
		Quit:     make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(ctrl *Control) Model {
	return Model{
		state:   "uninitialized",
		control: ctrl,
	}
}

// Run starts the TUI
func Run(ctrl *Control) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
	return p, nil
}
