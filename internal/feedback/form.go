package feedback

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/huh"
)

// Form collects feedback through a multi-line terminal text field.
type Form struct {
	Title   string
	timeout time.Duration
}

// NewForm returns a form-based Source. A zero timeout waits indefinitely.
func NewForm(timeout time.Duration) *Form {
	return &Form{Title: "User feedback", timeout: timeout}
}

// Request implements Source. Aborting the form counts as end of input.
func (f *Form) Request(ctx context.Context, prompt string) (string, error) {
	runCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var text string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title(f.Title).
				Description(formDescription(prompt)).
				Value(&text),
		),
	)

	if err := form.RunWithContext(runCtx); err != nil {
		switch {
		case ctx.Err() != nil:
			return "", ctx.Err()
		case runCtx.Err() != nil, errors.Is(err, huh.ErrTimeout):
			return "", ErrTimeout
		case errors.Is(err, huh.ErrUserAborted):
			return "", io.EOF
		default:
			return "", err
		}
	}
	return Normalize(text), nil
}

func formDescription(prompt string) string {
	if prompt == "" || prompt == DefaultPrompt {
		return "Leave empty to finish the run."
	}
	return prompt
}
