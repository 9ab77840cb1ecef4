package controller

import (
	"errors"
	"fmt"

	"github.com/andywolf/codeloop/internal/model"
)

// ErrEmptyDescription is returned when RunProject is given no description.
var ErrEmptyDescription = errors.New("project description is empty")

// ExternalServiceError reports a failed model call. The run is aborted and
// the call is not retried.
type ExternalServiceError struct {
	Step string // "generation" or "judgment"
	Err  error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("model call failed during %s: %v", e.Step, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// Kind returns the model error classification, if any.
func (e *ExternalServiceError) Kind() model.ErrorKind {
	return model.KindOf(e.Err)
}

// ExecutionLaunchFailure reports that the generated program could not be
// started at all.
type ExecutionLaunchFailure struct {
	Err error
}

func (e *ExecutionLaunchFailure) Error() string {
	return fmt.Sprintf("could not launch generated program: %v", e.Err)
}

func (e *ExecutionLaunchFailure) Unwrap() error {
	return e.Err
}

// IterationCapExceeded reports that the run used up its iteration budget.
type IterationCapExceeded struct {
	Cap int
}

func (e *IterationCapExceeded) Error() string {
	return fmt.Sprintf("iteration cap of %d reached without an accepted result", e.Cap)
}

// TranscriptError reports a failed transcript write. Nothing is executed
// after a failed write.
type TranscriptError struct {
	Op  string
	Err error
}

func (e *TranscriptError) Error() string {
	return fmt.Sprintf("transcript %s failed: %v", e.Op, e.Err)
}

func (e *TranscriptError) Unwrap() error {
	return e.Err
}
