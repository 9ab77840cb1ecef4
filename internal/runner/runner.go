// Package runner executes generated programs and captures their output.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultTimeout bounds a single program execution.
const DefaultTimeout = 60 * time.Second

// Runner executes a program's source text.
type Runner interface {
	// Execute runs source with the given timeout. A non-zero exit status or a
	// timeout is reported in Result, not as an error. An error is returned
	// only when the program could not be started at all.
	Execute(ctx context.Context, source string, timeout time.Duration) (Result, error)
}

// Result holds everything captured from one execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
	TimedOut bool
}

// Failed reports whether the program crashed, exited non-zero or timed out.
func (r Result) Failed() bool {
	return r.TimedOut || r.ExitCode != 0
}

// Output renders the captured streams the way they are shown to the judge
// and written to the transcript.
func (r Result) Output() string {
	var sb strings.Builder
	sb.WriteString(r.Stdout)
	sb.WriteString("\n")
	sb.WriteString(r.Stderr)
	if r.TimedOut {
		sb.WriteString("\nError: Code timed out.")
	}
	if r.ExitCode != 0 && !r.TimedOut {
		sb.WriteString(fmt.Sprintf("\n[Process exited with status %d.]", r.ExitCode))
	}
	sb.WriteString(fmt.Sprintf("\n[Code execution took %.2f seconds.]\n", r.Elapsed.Seconds()))
	return sb.String()
}

// LaunchError reports that the interpreter could not be started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
