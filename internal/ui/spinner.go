package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner is a blocking-free line spinner for work that happens before the
// call screen takes over the terminal.
type Spinner struct {
	mu       sync.Mutex
	message  string
	frames   []string
	interval time.Duration
	done     chan struct{}
	stopped  bool
}

// NewConnectionSpinner uses the Globe frames, for network operations.
func NewConnectionSpinner(message string) *Spinner {
	return newSpinner(message, spinner.Globe, 180*time.Millisecond)
}

func newSpinner(message string, s spinner.Spinner, interval time.Duration) *Spinner {
	return &Spinner{
		message:  message,
		frames:   s.Frames,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			s.mu.Lock()
			if !s.stopped {
				frame := SpinnerStyle.Render(s.frames[i%len(s.frames)])
				fmt.Fprintf(Output, "\r%s %s", frame, s.message)
			}
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	fmt.Fprint(Output, "\r\033[K")
}

func (s *Spinner) Success(message string) {
	s.Stop()
	PrintSuccess(message)
}

func (s *Spinner) Error(message string) {
	s.Stop()
	PrintError(message)
}

func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}
