// Package controller drives a run: it asks the model for code, executes it,
// asks the model to judge the output, collects human feedback after a PASS,
// and repeats until the result is accepted or the run aborts.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andywolf/codeloop/internal/feedback"
	"github.com/andywolf/codeloop/internal/memory"
	"github.com/andywolf/codeloop/internal/metrics"
	"github.com/andywolf/codeloop/internal/model"
	"github.com/andywolf/codeloop/internal/observability"
	"github.com/andywolf/codeloop/internal/prompt"
	"github.com/andywolf/codeloop/internal/runner"
	"github.com/andywolf/codeloop/internal/security"
	"github.com/andywolf/codeloop/internal/transcript"
)

const (
	// DefaultRunName prefixes generated run IDs.
	DefaultRunName = "codeloop"

	// NoCodeOutput is the evidence judged when a generation reply holds no
	// code block.
	NoCodeOutput = "No code was returned."
)

// Config controls a run.
type Config struct {
	RunName           string
	RunID             string // fixed run ID; generated from RunName when empty
	ModelName         string
	MaxIterations     int // 0 means unlimited
	ContextAttempts   int
	ExecTimeout       time.Duration
	ReuseJudgmentCode bool
	FeedbackPrompt    string
	LogDir            string // directory for {runId}.txt; empty disables the file
}

// Dependencies are the collaborators of a Controller. Model, Runner, Store
// and Feedback are required.
type Dependencies struct {
	Model       model.Client
	Runner      runner.Runner
	Store       transcript.Store
	Feedback    feedback.Source
	Matcher     VerdictMatcher
	Templates   *prompt.Templates
	Tracer      observability.Tracer
	Metrics     *metrics.Recorder
	CloudLogger CloudLogger
	Redactor    *security.Redactor
	Output      io.Writer
}

// Controller runs projects. It runs one project at a time.
type Controller struct {
	config      Config
	model       model.Client
	runner      runner.Runner
	store       transcript.Store
	feedback    feedback.Source
	matcher     VerdictMatcher
	templates   prompt.Templates
	tracer      observability.Tracer
	metrics     *metrics.Recorder
	cloudLogger CloudLogger
	redactor    *security.Redactor
	output      io.Writer
	logger      *log.Logger

	mu sync.Mutex
}

// New validates the configuration and creates a controller.
func New(config Config, deps Dependencies) (*Controller, error) {
	switch {
	case deps.Model == nil:
		return nil, errors.New("model client is required")
	case deps.Runner == nil:
		return nil, errors.New("code runner is required")
	case deps.Store == nil:
		return nil, errors.New("transcript store is required")
	case deps.Feedback == nil:
		return nil, errors.New("feedback source is required")
	}
	if config.MaxIterations < 0 {
		return nil, fmt.Errorf("max iterations must be >= 0, got %d", config.MaxIterations)
	}

	templates := prompt.Default()
	if deps.Templates != nil {
		templates = *deps.Templates
	}
	if err := templates.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prompt templates: %w", err)
	}

	if config.RunName == "" {
		config.RunName = DefaultRunName
	}
	if config.ContextAttempts <= 0 {
		config.ContextAttempts = memory.DefaultCapacity
	}
	if config.ExecTimeout <= 0 {
		config.ExecTimeout = runner.DefaultTimeout
	}
	if config.FeedbackPrompt == "" {
		config.FeedbackPrompt = feedback.DefaultPrompt
	}

	c := &Controller{
		config:      config,
		model:       deps.Model,
		runner:      deps.Runner,
		store:       deps.Store,
		feedback:    deps.Feedback,
		matcher:     deps.Matcher,
		templates:   templates,
		tracer:      deps.Tracer,
		metrics:     deps.Metrics,
		cloudLogger: deps.CloudLogger,
		redactor:    deps.Redactor,
		output:      deps.Output,
	}
	if c.matcher == nil {
		c.matcher = PhraseMatcher{Pass: templates.PassPhrase, Fail: templates.FailPhrase}
	}
	if c.tracer == nil {
		c.tracer = &observability.NoOpTracer{}
	}
	if c.output == nil {
		c.output = os.Stdout
	}
	c.logger = c.newLogger(c.output)
	return c, nil
}

func (c *Controller) newLogger(w io.Writer) *log.Logger {
	return log.New(security.NewWriter(w, c.redactor), "[codeloop] ", log.LstdFlags)
}

// RunProject iterates on description until the result is accepted or a
// fatal error occurs. The summary is returned in both cases; on a fatal
// error it is partial, its State is Aborted and the error is also returned.
func (c *Controller) RunProject(ctx context.Context, description string) (RunSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if strings.TrimSpace(description) == "" {
		return RunSummary{State: StateAborted, Cause: ErrEmptyDescription}, ErrEmptyDescription
	}

	start := time.Now()
	runID := c.config.RunID
	if runID == "" {
		runID = transcript.NewRunID(c.config.RunName, start)
	}

	window := memory.NewWindow(description,
		memory.WithCapacity(c.config.ContextAttempts),
		memory.WithTemplates(c.templates))
	rc := newRunContext(runID, description, window, start)

	closeLog, err := c.openRunLog(rc)
	if err != nil {
		rc.State = StateAborted
		return rc.summary(err), err
	}
	defer closeLog()

	rc.trace = c.tracer.StartTrace(runID, observability.TraceOptions{
		Model:         c.config.ModelName,
		Description:   description,
		MaxIterations: c.config.MaxIterations,
	})

	c.logInfo("==============================================================")
	c.logInfo("Run %s started.", runID)
	c.logInfo("Keeping only the last %d code attempts in context, plus user feedback.", window.Capacity())
	if c.config.MaxIterations > 0 {
		c.logInfo("Iteration cap: %d", c.config.MaxIterations)
	}
	c.logInfo("==============================================================")
	c.logBlock("User project description", description)

	err = c.transition(ctx, rc, StateGenerating, "run started")
	for err == nil && !rc.State.Terminal() {
		err = c.runIteration(ctx, rc)
	}
	if err != nil {
		c.abort(ctx, rc, err)
	}

	summary := rc.summary(err)
	c.finish(ctx, rc, summary)
	return summary, err
}

// openRunLog points the logger at the console and {runId}.txt.
func (c *Controller) openRunLog(rc *RunContext) (func(), error) {
	c.logger = c.newLogger(c.output)
	if c.config.LogDir == "" {
		return func() {}, nil
	}

	if err := os.MkdirAll(c.config.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	path := filepath.Join(c.config.LogDir, rc.RunID+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	rc.LogPath = path
	c.logger = c.newLogger(io.MultiWriter(c.output, f))

	return func() {
		c.logger = c.newLogger(c.output)
		_ = f.Close()
	}, nil
}

// runIteration performs one Generating → Executing → Judging pass and the
// decision that follows it.
func (c *Controller) runIteration(ctx context.Context, rc *RunContext) error {
	if c.config.MaxIterations > 0 && rc.Total >= c.config.MaxIterations {
		return &IterationCapExceeded{Cap: c.config.MaxIterations}
	}

	iterStart := time.Now()
	rec := IterationRecord{Round: rc.Round, Index: rc.Iteration + 1}
	span := c.tracer.StartIteration(rc.trace, fmt.Sprintf("fdbk%d_iter%d", rec.Round, rec.Index),
		observability.SpanOptions{Round: rec.Round, Iteration: rec.Index})

	code, hasCode, err := c.generate(ctx, rc, &rec, span)
	if err != nil {
		c.tracer.EndIteration(span, "error", time.Since(iterStart).Milliseconds())
		return err
	}

	// The iteration exists once there is a reply to act on.
	rc.Iteration = rec.Index
	rc.Total++

	err = c.evaluate(ctx, rc, &rec, span, code, hasCode)

	rec.Timings.Total = time.Since(iterStart)
	rc.commit(rec)
	c.logIterationSummary(rec)

	status := string(rec.Verdict)
	if err != nil {
		status = "error"
	}
	c.tracer.EndIteration(span, status, rec.Timings.Total.Milliseconds())
	return err
}

// generate obtains the code for this iteration, either from the previous
// FAIL reply or from a generation call.
func (c *Controller) generate(ctx context.Context, rc *RunContext, rec *IterationRecord, span observability.SpanContext) (string, bool, error) {
	if rc.pendingCode != "" {
		code := rc.pendingCode
		rc.pendingCode = ""
		rec.Reused = true
		c.logInfo("---- Using code from the previous judgment reply => feedback %d, code iteration %d ----", rec.Round, rec.Index)
		c.tracer.RecordSkipped(span, "Generator", "reused_judgment_code")
		return code, true, nil
	}

	c.logInfo("==== Code Generation Step => feedback %d, code iteration %d ====", rec.Round, rec.Index)
	turns := rc.Window.BuildGenerationPrompt()
	reply, elapsed, err := c.callModel(ctx, span, "Generator", turns)
	rec.Timings.Generation = elapsed
	c.metrics.ObserveStep(metrics.StepGeneration, elapsed)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		return "", false, &ExternalServiceError{Step: "generation", Err: err}
	}
	c.logBlock("Model Response (Code Generation)", reply)

	code, ok := ExtractCode(reply)
	if !ok {
		c.logWarning("model returned no valid code")
	}
	return code, ok, nil
}

// evaluate executes the code, judges the result and applies the verdict.
func (c *Controller) evaluate(ctx context.Context, rc *RunContext, rec *IterationRecord, span observability.SpanContext, code string, hasCode bool) error {
	output, err := c.execute(ctx, rc, rec, span, code, hasCode)
	if err != nil {
		return err
	}
	rc.Window.RecordIteration(code, output)

	reply, err := c.judge(ctx, rc, rec, span, code, output)
	if err != nil {
		return err
	}

	if rec.Verdict == VerdictPass {
		return c.onPass(ctx, rc, rec)
	}
	return c.onFail(ctx, rc, reply)
}

// execute persists the code, runs it and persists the output. Without code
// nothing is saved or run and the evidence is NoCodeOutput.
func (c *Controller) execute(ctx context.Context, rc *RunContext, rec *IterationRecord, span observability.SpanContext, code string, hasCode bool) (string, error) {
	if !hasCode {
		rec.Output = NoCodeOutput
		c.tracer.RecordSkipped(span, "Runner", "no_code")
		return NoCodeOutput, c.transition(ctx, rc, StateExecuting, "no code returned")
	}

	key := transcript.Key{RunID: rc.RunID, Feedback: rec.Round, Iteration: rec.Index}
	loc, err := c.store.SaveCode(ctx, key, code)
	if err != nil {
		return "", &TranscriptError{Op: "save code", Err: err}
	}
	rec.Code = code
	rec.CodeLocation = loc
	c.logInfo("==> Code saved to: %s", loc)

	if err := c.transition(ctx, rc, StateExecuting, ""); err != nil {
		return "", err
	}

	c.logInfo("---- Running code => feedback %d, iteration %d ----", rec.Round, rec.Index)
	start := time.Now()
	res, err := c.runner.Execute(ctx, code, c.config.ExecTimeout)
	rec.Timings.Execution = time.Since(start)
	c.metrics.ObserveStep(metrics.StepExecution, rec.Timings.Execution)
	if err != nil {
		var launchErr *runner.LaunchError
		if errors.As(err, &launchErr) {
			return "", &ExecutionLaunchFailure{Err: err}
		}
		return "", fmt.Errorf("execution failed: %w", err)
	}

	rec.Executed = true
	rec.ExitCode = res.ExitCode
	rec.TimedOut = res.TimedOut
	rec.ExecElapsed = res.Elapsed
	c.metrics.ObserveExecution(executionOutcome(res))
	if res.Failed() {
		c.logWarning("program failed (exit status %d, timed out: %v); passing the output to judgment", res.ExitCode, res.TimedOut)
	}

	output := res.Output()
	rec.Output = output
	c.logBlock("Code Output", output)

	loc, err = c.store.SaveOutput(ctx, key, output)
	if err != nil {
		return "", &TranscriptError{Op: "save output", Err: err}
	}
	rec.OutputLocation = loc
	c.logInfo("==> Output saved to: %s", loc)
	return output, nil
}

// judge asks the model whether this attempt satisfies the description.
func (c *Controller) judge(ctx context.Context, rc *RunContext, rec *IterationRecord, span observability.SpanContext, code, output string) (string, error) {
	if err := c.transition(ctx, rc, StateJudging, ""); err != nil {
		return "", err
	}

	c.logInfo("==== Code Judgment Step => feedback %d, code iteration %d ====", rec.Round, rec.Index)
	turns := rc.Window.BuildJudgmentPrompt(code, output)
	reply, elapsed, err := c.callModel(ctx, span, "Judge", turns)
	rec.Timings.Judgment = elapsed
	c.metrics.ObserveStep(metrics.StepJudgment, elapsed)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &ExternalServiceError{Step: "judgment", Err: err}
	}
	c.logBlock("Model Response (Code Judgment)", reply)

	verdict, ok := c.matcher.Match(reply)
	if !ok {
		verdict = VerdictFail
		c.logWarning("judgment matched neither verdict phrase, treating as FAIL; raw reply: %q", reply)
	}
	rec.Verdict = verdict
	rec.Recognized = ok
	c.metrics.ObserveVerdict(string(verdict))
	return reply, nil
}

// onPass solicits feedback: none finalizes the run, any starts a new round.
func (c *Controller) onPass(ctx context.Context, rc *RunContext, rec *IterationRecord) error {
	rc.Passes++
	c.logInfo("~~~~ Model indicates the project is complete. Moving to user review. ~~~~")
	if err := c.transition(ctx, rc, StateAwaitingFeedback, ""); err != nil {
		return err
	}

	text, elapsed, err := c.requestFeedback(ctx)
	rec.Timings.Feedback = elapsed
	if err != nil {
		return err
	}

	if text == "" {
		rec.FeedbackStatus = "Accepted"
		c.logInfo("No user feedback => project finalized.")
		return c.transition(ctx, rc, StateFinalized, "accepted")
	}

	rec.FeedbackStatus = "Changes requested"
	c.logInfo("User provided feedback => requesting further code updates.")
	rc.Window.SetFeedback(text)
	rc.startRound(text)
	return c.transition(ctx, rc, StateGenerating, "feedback accepted")
}

// onFail attaches the judgment to the attempt and continues in the same
// round without asking for feedback.
func (c *Controller) onFail(ctx context.Context, rc *RunContext, reply string) error {
	rc.Fails++
	c.logInfo("~~~~ Model indicates the project is NOT complete. ~~~~")
	rc.Window.AnnotateLatest(commentary(reply))

	if c.config.ReuseJudgmentCode {
		if revised, ok := ExtractCode(reply); ok {
			rc.pendingCode = revised
			c.logInfo("Found new code in the judgment reply => next iteration will skip code generation.")
		} else {
			c.logInfo("No revised code found => next iteration does normal code generation.")
		}
	}
	return c.transition(ctx, rc, StateGenerating, "verdict FAIL")
}

// requestFeedback waits for the reviewer. A timeout or closed input counts
// as no feedback.
func (c *Controller) requestFeedback(ctx context.Context) (string, time.Duration, error) {
	c.logInfo("User, please review and provide feedback or press Enter to skip.")
	start := time.Now()
	text, err := c.feedback.Request(ctx, c.config.FeedbackPrompt)
	elapsed := time.Since(start)
	c.metrics.ObserveStep(metrics.StepFeedback, elapsed)

	switch {
	case err == nil:
	case errors.Is(err, feedback.ErrTimeout):
		c.logWarning("no feedback received after %s; treating as accepted", seconds(elapsed))
		text = ""
	case errors.Is(err, io.EOF):
		c.logInfo("Feedback input closed; treating as accepted.")
		text = ""
	default:
		return "", elapsed, fmt.Errorf("failed to read feedback: %w", err)
	}

	text = feedback.Normalize(text)
	c.logInfo("<<User feedback:>> %s", text)
	return text, elapsed, nil
}

// callModel sends turns and records the call on the trace.
func (c *Controller) callModel(ctx context.Context, span observability.SpanContext, name string, turns []model.Turn) (string, time.Duration, error) {
	start := time.Now()
	reply, err := c.model.Send(ctx, turns)
	elapsed := time.Since(start)

	status := "completed"
	if err != nil {
		status = "error"
		c.metrics.ObserveModelError(string(model.KindOf(err)))
	}
	c.tracer.RecordGeneration(span, observability.GenerationInput{
		Name:       name,
		Model:      c.config.ModelName,
		Input:      c.redactor.Redact(renderTurns(turns)),
		Output:     c.redactor.Redact(reply),
		Status:     status,
		DurationMs: elapsed.Milliseconds(),
	})
	return reply, elapsed, err
}

// transition moves rc to state and writes the durability record.
func (c *Controller) transition(ctx context.Context, rc *RunContext, to State, detail string) error {
	from := rc.State
	rc.State = to
	rc.Seq++

	label := string(from)
	if label == "" {
		label = "start"
	}
	if detail != "" {
		c.logInfo("State: %s -> %s (feedback %d, iteration %d): %s", label, to, rc.Round, rc.Iteration, detail)
	} else {
		c.logInfo("State: %s -> %s (feedback %d, iteration %d)", label, to, rc.Round, rc.Iteration)
	}

	err := c.store.RecordTransition(ctx, transcript.Transition{
		ID:        uuid.New().String(),
		RunID:     rc.RunID,
		Seq:       rc.Seq,
		From:      string(from),
		To:        string(to),
		Feedback:  rc.Round,
		Iteration: rc.Iteration,
		Passes:    rc.Passes,
		Fails:     rc.Fails,
		Detail:    c.redactor.Redact(detail),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return &TranscriptError{Op: "record transition", Err: err}
	}
	return nil
}

// abort moves the run to Aborted after a fatal error. The record is written
// even when ctx was cancelled.
func (c *Controller) abort(ctx context.Context, rc *RunContext, cause error) {
	c.logError("%v", cause)
	if rc.State == StateAborted {
		return
	}
	if err := c.transition(context.WithoutCancel(ctx), rc, StateAborted, cause.Error()); err != nil {
		c.logError("failed to record abort: %v", err)
	}
}

// finish prints the final tally and closes the trace.
func (c *Controller) finish(ctx context.Context, rc *RunContext, summary RunSummary) {
	c.logFinalSummary(summary)
	c.metrics.ObserveRun(string(summary.State))
	c.tracer.CompleteTrace(rc.trace, observability.CompleteOptions{
		Status: strings.ToLower(string(summary.State)),
		Passes: summary.Passes,
		Fails:  summary.Fails,
	})
	if err := c.tracer.Flush(context.WithoutCancel(ctx)); err != nil {
		c.logWarning("failed to flush traces: %v", err)
	}
	if err := c.writeWindowSnapshot(rc); err != nil {
		c.logWarning("failed to write window snapshot: %v", err)
	}
}

// writeWindowSnapshot stores the final context window as
// {LogDir}/{runId}_window.json.
func (c *Controller) writeWindowSnapshot(rc *RunContext) error {
	if c.config.LogDir == "" || rc.Window == nil {
		return nil
	}
	snap := rc.Window.Snapshot()
	snap.Description = c.redactor.Redact(snap.Description)
	snap.Feedback = c.redactor.Redact(snap.Feedback)
	for i, a := range snap.Attempts {
		snap.Attempts[i] = memory.Attempt{
			Code:     c.redactor.Redact(a.Code),
			Output:   c.redactor.Redact(a.Output),
			Judgment: c.redactor.Redact(a.Judgment),
		}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(c.config.LogDir, rc.RunID+"_window.json")
	return os.WriteFile(path, data, 0o644)
}

func executionOutcome(res runner.Result) string {
	switch {
	case res.TimedOut:
		return "timeout"
	case res.ExitCode != 0:
		return "exit_nonzero"
	default:
		return "ok"
	}
}

// blankLines collapses the gaps left after removing code blocks.
var blankLines = regexp.MustCompile(`\n{3,}`)

// commentary strips code blocks from a judgment reply, keeping the analysis.
// The reply is returned unchanged when it is nothing but code.
func commentary(reply string) string {
	stripped := codeFencePattern.ReplaceAllString(reply, "")
	stripped = strings.TrimSpace(blankLines.ReplaceAllString(stripped, "\n\n"))
	if stripped == "" {
		return strings.TrimSpace(reply)
	}
	return stripped
}

func renderTurns(turns []model.Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
	}
	return sb.String()
}
