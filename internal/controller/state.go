package controller

import (
	"time"

	"github.com/andywolf/codeloop/internal/memory"
	"github.com/andywolf/codeloop/internal/observability"
)

// State is a controller state.
type State string

const (
	StateGenerating       State = "Generating"
	StateExecuting        State = "Executing"
	StateJudging          State = "Judging"
	StateAwaitingFeedback State = "AwaitingFeedback"
	StateFinalized        State = "Finalized"
	StateAborted          State = "Aborted"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateAborted
}

// Verdict is the judgment step's classification of one iteration.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Timings holds how long each step of an iteration took.
type Timings struct {
	Generation time.Duration `json:"generation"`
	Execution  time.Duration `json:"execution"`
	Judgment   time.Duration `json:"judgment"`
	Feedback   time.Duration `json:"feedback"`
	Total      time.Duration `json:"total"`
}

// IterationRecord describes one completed or aborted code iteration.
type IterationRecord struct {
	Round          int           `json:"round"`
	Index          int           `json:"index"`
	Code           string        `json:"code"`
	Output         string        `json:"output"`
	Executed       bool          `json:"executed"`
	ExitCode       int           `json:"exit_code"`
	TimedOut       bool          `json:"timed_out"`
	ExecElapsed    time.Duration `json:"exec_elapsed"`
	Verdict        Verdict       `json:"verdict,omitempty"`
	Recognized     bool          `json:"recognized"`
	Reused         bool          `json:"reused"`
	FeedbackStatus string        `json:"feedback_status,omitempty"`
	CodeLocation   string        `json:"code_location,omitempty"`
	OutputLocation string        `json:"output_location,omitempty"`
	Timings        Timings       `json:"timings"`
}

// RoundSummary groups the iterations of one feedback round.
type RoundSummary struct {
	Index      int               `json:"index"`
	Feedback   string            `json:"feedback,omitempty"`
	Iterations []IterationRecord `json:"iterations"`
}

// Duration sums the total time of the round's iterations.
func (r RoundSummary) Duration() time.Duration {
	var d time.Duration
	for _, it := range r.Iterations {
		d += it.Timings.Total
	}
	return d
}

// RunSummary is returned by RunProject. On a fatal error it is partial and
// Cause holds the error.
type RunSummary struct {
	RunID   string         `json:"run_id"`
	LogPath string         `json:"log_path,omitempty"`
	Passes  int            `json:"passes"`
	Fails   int            `json:"fails"`
	State   State          `json:"state"`
	Cause   error          `json:"-"`
	Rounds  []RoundSummary `json:"rounds"`
}

// Iterations returns the number of iterations across all rounds.
func (s RunSummary) Iterations() int {
	n := 0
	for _, r := range s.Rounds {
		n += len(r.Iterations)
	}
	return n
}

// RunContext is the explicit state of one run, threaded through every step.
type RunContext struct {
	RunID       string
	Description string
	State       State
	Round       int // zero-based feedback round
	Iteration   int // last committed iteration within Round, one-based
	Total       int // iterations across the run
	Passes      int
	Fails       int
	Seq         int // transition sequence number
	Window      *memory.Window
	Rounds      []RoundSummary
	Start       time.Time
	LogPath     string

	// pendingCode holds code from a FAIL judgment reply, used in place of
	// the next generation call.
	pendingCode string

	trace observability.TraceContext
}

func newRunContext(runID, description string, window *memory.Window, start time.Time) *RunContext {
	return &RunContext{
		RunID:       runID,
		Description: description,
		Window:      window,
		Start:       start,
		Rounds:      []RoundSummary{{Index: 0}},
	}
}

// startRound opens the next feedback round with the given feedback.
func (rc *RunContext) startRound(feedback string) {
	rc.Round++
	rc.Iteration = 0
	rc.Rounds = append(rc.Rounds, RoundSummary{Index: rc.Round, Feedback: feedback})
}

// commit appends a finished iteration record to the round it ran in.
func (rc *RunContext) commit(rec IterationRecord) {
	r := &rc.Rounds[rec.Round]
	r.Iterations = append(r.Iterations, rec)
}

func (rc *RunContext) summary(cause error) RunSummary {
	rounds := make([]RoundSummary, len(rc.Rounds))
	copy(rounds, rc.Rounds)
	return RunSummary{
		RunID:   rc.RunID,
		LogPath: rc.LogPath,
		Passes:  rc.Passes,
		Fails:   rc.Fails,
		State:   rc.State,
		Cause:   cause,
		Rounds:  rounds,
	}
}
