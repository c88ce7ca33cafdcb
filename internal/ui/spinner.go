package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Spinner and progress output goes to stderr so that --json output on
// stdout stays machine readable.
var statusOut io.Writer = os.Stderr

func statusIsTTY() bool {
	f, ok := statusOut.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Spinner displays an animated spinner with a message.
type Spinner struct {
	message string
	frames  []string
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	current int
	active  bool
}

// Default spinner frames (dots style)
var defaultFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewSpinner creates a new spinner with the given message.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		frames:  defaultFrames,
		done:    make(chan struct{}),
	}
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	// Only animate if we're in a TTY
	if !statusIsTTY() {
		fmt.Fprintf(statusOut, "%s...\n", s.message)
		return
	}

	s.active = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				// Clear the spinner line
				fmt.Fprint(statusOut, "\r\033[K")
				return
			case <-ticker.C:
				s.mu.Lock()
				frame := s.frames[s.current%len(s.frames)]
				s.current++
				message := s.message
				s.mu.Unlock()
				fmt.Fprintf(statusOut, "\r\033[K%s %s", Bold.Render(frame), message)
			}
		}
	}()
}

// SetMessage replaces the message shown next to the spinner.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop stops the spinner.
func (s *Spinner) Stop() {
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	s.wg.Wait()
}

// StopWithMessage stops the spinner and prints a final message.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	fmt.Fprintln(statusOut, message)
}

// StopWithCheck stops the spinner and prints a success message.
func (s *Spinner) StopWithCheck(message string) {
	s.Stop()
	fmt.Fprintln(statusOut, Check(message))
}

// Progress displays a counter for the pages of one execution phase.
type Progress struct {
	total   int
	current int
	message string
	mu      sync.Mutex
}

// NewProgress creates a new progress indicator.
func NewProgress(message string, total int) *Progress {
	return &Progress{
		message: message,
		total:   total,
	}
}

// Update sets the counter and the page currently being worked on.
func (p *Progress) Update(current int, detail string) {
	p.mu.Lock()
	p.current = current
	p.mu.Unlock()
	if !statusIsTTY() {
		return
	}
	line := fmt.Sprintf("\r\033[K%s %s", p.message, Muted.Render(fmt.Sprintf("(%d/%d)", current, p.total)))
	if detail != "" {
		line += " " + detail
	}
	fmt.Fprint(statusOut, line)
}

// Increment increments the progress by one.
func (p *Progress) Increment() {
	p.mu.Lock()
	current := p.current + 1
	p.mu.Unlock()
	p.Update(current, "")
}

// Done finishes the progress indicator.
func (p *Progress) Done() {
	if statusIsTTY() {
		fmt.Fprint(statusOut, "\r\033[K") // Clear line
	}
}

// DoneWithMessage finishes the progress and prints a message.
func (p *Progress) DoneWithMessage(message string) {
	p.Done()
	fmt.Fprintln(statusOut, message)
}
