package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SimpleSpinner draws a one-line spinner while a blocking step runs, such
// as dialing the hub.
type SimpleSpinner struct {
	out      io.Writer
	message  string
	spinner  spinner.Spinner
	interval time.Duration

	mu      sync.Mutex
	started bool
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewConnectionSpinner creates a spinner for network steps (Globe style).
func NewConnectionSpinner(message string) *SimpleSpinner {
	return newSpinner(Output, message, spinner.Globe, 180*time.Millisecond)
}

func newSpinner(out io.Writer, message string, s spinner.Spinner, interval time.Duration) *SimpleSpinner {
	return &SimpleSpinner{
		out:      out,
		spinner:  s,
		interval: interval,
		message:  message,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (s *SimpleSpinner) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		frames := s.spinner.Frames
		for i := 0; ; i++ {
			fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(frames[i%len(frames)]), s.message)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the spinner and clears its line. It is safe to call more
// than once.
func (s *SimpleSpinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			return
		}
		<-s.stopped
		fmt.Fprint(s.out, "\r\033[K")
	})
}

func (s *SimpleSpinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *SimpleSpinner) Error(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", ErrorStyle.Render(IconError), message)
}
