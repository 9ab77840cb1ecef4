// Package feedback collects free-text reviewer feedback after a passing
// iteration. An empty response ends the run.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// DefaultPrompt is printed before reading a line of feedback.
const DefaultPrompt = "<<User feedback:>> "

// ErrTimeout is returned when no feedback arrives within the configured wait.
var ErrTimeout = errors.New("timed out waiting for feedback")

// Source supplies reviewer feedback. Implementations return io.EOF once
// the input is exhausted.
type Source interface {
	Request(ctx context.Context, prompt string) (string, error)
}

// Mode selects a Source implementation.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeForm Mode = "form"
	ModeLine Mode = "line"
	ModeNone Mode = "none"
)

// New builds a Source for mode. In auto mode an interactive terminal gets
// the form prompt and anything else is read line by line.
func New(mode Mode, in *os.File, out io.Writer, timeout time.Duration) (Source, error) {
	switch mode {
	case ModeAuto, "":
		if IsTerminal(in) {
			return NewForm(timeout), nil
		}
		return NewLine(in, out, timeout), nil
	case ModeForm:
		return NewForm(timeout), nil
	case ModeLine:
		return NewLine(in, out, timeout), nil
	case ModeNone:
		return &Static{}, nil
	default:
		return nil, fmt.Errorf("unknown feedback mode %q (valid: auto, form, line, none)", mode)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Static replays a fixed list of responses, then returns empty feedback.
type Static struct {
	mu        sync.Mutex
	Responses []string
	asked     int
}

// Request implements Source.
func (s *Static) Request(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked++
	if len(s.Responses) == 0 {
		return "", nil
	}
	r := s.Responses[0]
	s.Responses = s.Responses[1:]
	return r, nil
}

// Asked returns how many times feedback was requested.
func (s *Static) Asked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asked
}

// Normalize trims surrounding whitespace from a response.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}
