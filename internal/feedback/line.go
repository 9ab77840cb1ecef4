package feedback

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

const maxLineBytes = 1024 * 1024

type lineResult struct {
	text string
	err  error
}

// Line reads one line of feedback per request. A single background reader
// owns the input so a cancelled request does not lose the next line.
type Line struct {
	in      io.Reader
	out     io.Writer
	timeout time.Duration

	once  sync.Once
	lines chan lineResult
}

// NewLine returns a line reader over in. A zero timeout waits indefinitely.
func NewLine(in io.Reader, out io.Writer, timeout time.Duration) *Line {
	if out == nil {
		out = io.Discard
	}
	return &Line{in: in, out: out, timeout: timeout, lines: make(chan lineResult)}
}

func (l *Line) start() {
	go func() {
		defer close(l.lines)
		scanner := bufio.NewScanner(l.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			l.lines <- lineResult{text: scanner.Text()}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		l.lines <- lineResult{err: err}
	}()
}

// Request implements Source.
func (l *Line) Request(ctx context.Context, prompt string) (string, error) {
	if prompt != "" {
		_, _ = fmt.Fprint(l.out, prompt)
	}
	l.once.Do(l.start)

	var deadline <-chan time.Time
	if l.timeout > 0 {
		timer := time.NewTimer(l.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case r, ok := <-l.lines:
		if !ok {
			return "", io.EOF
		}
		if r.err != nil {
			return "", r.err
		}
		return Normalize(r.text), nil
	case <-deadline:
		return "", ErrTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
