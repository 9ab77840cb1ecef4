// Package memory maintains the bounded conversation fed to the model: the
// project description, the most recent code attempts and the latest user
// feedback.
package memory

import (
	"github.com/andywolf/codeloop/internal/model"
	"github.com/andywolf/codeloop/internal/prompt"
	"github.com/andywolf/codeloop/internal/template"
)

// DefaultCapacity is the number of code attempts kept in context.
const DefaultCapacity = 3

// Attempt is one executed code iteration as remembered by the window.
type Attempt struct {
	Code     string `json:"code"`
	Output   string `json:"output"`
	Judgment string `json:"judgment,omitempty"`
}

// Window is the sliding context. The zero value is not usable; use NewWindow.
// Prompt construction reads only the window's own state.
type Window struct {
	description string
	capacity    int
	attempts    []Attempt
	feedback    string
	templates   prompt.Templates
}

// Option configures a Window.
type Option func(*Window)

// WithCapacity overrides the number of attempts kept (minimum 1).
func WithCapacity(n int) Option {
	return func(w *Window) {
		if n > 0 {
			w.capacity = n
		}
	}
}

// WithTemplates sets the prompt texts used to render turns.
func WithTemplates(t prompt.Templates) Option {
	return func(w *Window) {
		w.templates = t
	}
}

// NewWindow creates a window for the given project description.
func NewWindow(description string, opts ...Option) *Window {
	w := &Window{
		description: description,
		capacity:    DefaultCapacity,
		templates:   prompt.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Description returns the project description.
func (w *Window) Description() string {
	return w.description
}

// Capacity returns the maximum number of attempts kept.
func (w *Window) Capacity() int {
	return w.capacity
}

// RecordIteration appends an attempt, evicting the oldest ones so that at
// most Capacity attempts remain.
func (w *Window) RecordIteration(code, output string) {
	w.attempts = append(w.attempts, Attempt{Code: code, Output: output})
	if excess := len(w.attempts) - w.capacity; excess > 0 {
		w.attempts = append([]Attempt(nil), w.attempts[excess:]...)
	}
}

// AnnotateLatest attaches judgment commentary to the newest attempt. It is a
// no-op when no attempt has been recorded.
func (w *Window) AnnotateLatest(judgment string) {
	if len(w.attempts) == 0 {
		return
	}
	w.attempts[len(w.attempts)-1].Judgment = judgment
}

// SetFeedback replaces any previously stored feedback.
func (w *Window) SetFeedback(text string) {
	w.feedback = text
}

// Feedback returns the stored feedback text.
func (w *Window) Feedback() string {
	return w.feedback
}

// Attempts returns a copy of the attempts in context, oldest first.
func (w *Window) Attempts() []Attempt {
	out := make([]Attempt, len(w.attempts))
	copy(out, w.attempts)
	return out
}

// BuildGenerationPrompt returns the system turn, the description turn, one
// (code, output) turn pair per remembered attempt oldest first, the feedback
// turn when feedback is set, and the generation instruction.
func (w *Window) BuildGenerationPrompt() []model.Turn {
	t := w.templates
	turns := []model.Turn{
		{Role: model.RoleSystem, Content: t.Render(t.System, nil)},
		{Role: model.RoleUser, Content: t.Render(t.Description, template.Vars{"description": w.description})},
	}

	for _, a := range w.attempts {
		turns = append(turns, model.Turn{
			Role:    model.RoleAssistant,
			Content: t.Render(t.AttemptCode, template.Vars{"code": a.Code}),
		})
		out := t.Render(t.AttemptOutput, template.Vars{"output": a.Output})
		if a.Judgment != "" {
			out += "\n\n" + t.Render(t.AttemptJudgment, template.Vars{"judgment": a.Judgment})
		}
		turns = append(turns, model.Turn{Role: model.RoleUser, Content: out})
	}

	if w.feedback != "" {
		turns = append(turns, model.Turn{
			Role:    model.RoleUser,
			Content: t.Render(t.Feedback, template.Vars{"feedback": w.feedback}),
		})
	}

	turns = append(turns, model.Turn{Role: model.RoleUser, Content: t.Render(t.Generation, nil)})
	return turns
}

// BuildJudgmentPrompt returns the conversation asking the model to judge a
// single attempt. It does not include the window's history.
func (w *Window) BuildJudgmentPrompt(code, output string) []model.Turn {
	t := w.templates
	return []model.Turn{
		{Role: model.RoleSystem, Content: t.Render(t.System, nil)},
		{Role: model.RoleUser, Content: t.Render(t.Judgment, template.Vars{
			"description": w.description,
			"code":        code,
			"output":      output,
		})},
	}
}
