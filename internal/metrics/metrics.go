// Package metrics records Prometheus metrics for codeloop runs. A CLI run is
// short-lived, so the collected series are pushed to a Pushgateway when the
// run ends instead of being scraped.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	namespace = "codeloop"

	// JobName is the Pushgateway job label.
	JobName = "codeloop"
)

// Step names used for duration observations.
const (
	StepGeneration = "generation"
	StepExecution  = "execution"
	StepJudgment   = "judgment"
	StepFeedback   = "feedback"
)

// Recorder holds the run metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	// VerdictsTotal counts judgments by verdict (PASS, FAIL).
	VerdictsTotal *prometheus.CounterVec

	// StepDurationSeconds measures each iteration step.
	// Labels: step (generation, execution, judgment, feedback)
	StepDurationSeconds *prometheus.HistogramVec

	// RunsTotal counts finished runs by final state.
	RunsTotal *prometheus.CounterVec

	// ModelErrorsTotal counts failed model calls by error kind.
	ModelErrorsTotal *prometheus.CounterVec

	// ExecutionsTotal counts program executions by outcome
	// (ok, exit_nonzero, timeout).
	ExecutionsTotal *prometheus.CounterVec
}

// NewRecorder registers all metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		VerdictsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Judgment verdicts by outcome",
			},
			[]string{"verdict"},
		),
		StepDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of each iteration step in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"step"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Completed runs by final state",
			},
			[]string{"state"},
		),
		ModelErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_errors_total",
				Help:      "Failed model calls by error kind",
			},
			[]string{"kind"},
		),
		ExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Program executions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveStep records how long one iteration step took.
func (r *Recorder) ObserveStep(step string, d time.Duration) {
	if r == nil {
		return
	}
	r.StepDurationSeconds.WithLabelValues(step).Observe(d.Seconds())
}

// ObserveVerdict counts one judgment.
func (r *Recorder) ObserveVerdict(verdict string) {
	if r == nil {
		return
	}
	r.VerdictsTotal.WithLabelValues(verdict).Inc()
}

// ObserveExecution counts one program execution.
func (r *Recorder) ObserveExecution(outcome string) {
	if r == nil {
		return
	}
	r.ExecutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveModelError counts one failed model call.
func (r *Recorder) ObserveModelError(kind string) {
	if r == nil {
		return
	}
	r.ModelErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveRun counts a finished run.
func (r *Recorder) ObserveRun(state string) {
	if r == nil {
		return
	}
	r.RunsTotal.WithLabelValues(state).Inc()
}

// Push sends the collected series to the Pushgateway at url, grouped by
// run ID.
func (r *Recorder) Push(ctx context.Context, url, runID string) error {
	if r == nil || url == "" {
		return nil
	}
	pusher := push.New(url, JobName).Gatherer(r.registry)
	if runID != "" {
		pusher = pusher.Grouping("run_id", runID)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
