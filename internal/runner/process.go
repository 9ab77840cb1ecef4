package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Execute waits for orphaned children holding the
// output pipes after the interpreter itself has been killed.
const waitDelay = 2 * time.Second

// ProcessRunner writes the source to a temporary file and runs it with an
// interpreter subprocess.
type ProcessRunner struct {
	// Interpreter is the command and leading arguments, e.g. ["python3"].
	Interpreter []string
	// Extension is the temp file suffix, e.g. ".py".
	Extension string
	// Dir is the working directory for the program; empty uses the current one.
	Dir string
}

var _ Runner = (*ProcessRunner)(nil)

// NewProcessRunner returns a runner for the given interpreter command.
func NewProcessRunner(interpreter []string, extension, dir string) *ProcessRunner {
	if len(interpreter) == 0 {
		interpreter = []string{"python3"}
	}
	if extension == "" {
		extension = ".py"
	}
	return &ProcessRunner{Interpreter: interpreter, Extension: extension, Dir: dir}
}

// Execute implements Runner.
func (p *ProcessRunner) Execute(ctx context.Context, source string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tmp, err := os.CreateTemp("", "codeloop-*"+p.Extension)
	if err != nil {
		return Result{}, &LaunchError{Command: p.command(), Err: fmt.Errorf("create temp file: %w", err)}
	}
	path := tmp.Name()
	defer func() { _ = os.Remove(path) }()

	if _, err := tmp.WriteString(source); err != nil {
		_ = tmp.Close()
		return Result{}, &LaunchError{Command: p.command(), Err: fmt.Errorf("write temp file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return Result{}, &LaunchError{Command: p.command(), Err: fmt.Errorf("close temp file: %w", err)}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, p.Interpreter[1:]...), path)
	cmd := exec.CommandContext(runCtx, p.Interpreter[0], args...)
	if p.Dir != "" {
		cmd.Dir = p.Dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	res := Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Elapsed: time.Since(start),
	}

	if runErr == nil {
		return res, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, &LaunchError{Command: p.command(), Err: runErr}
}

func (p *ProcessRunner) command() string {
	return strings.Join(p.Interpreter, " ")
}
