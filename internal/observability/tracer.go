package observability

import "context"

// Tracer defines the interface for observability tracing.
// Implementations follow one run through its code iterations, recording
// model calls (generations) and steps that were skipped.
//
// Trace hierarchy:
//
//	Run (Trace)
//	  └── Iteration (Span): fdbk0_iter1, fdbk0_iter2, ...
//	        ├── Generator (Generation or Event if skipped)
//	        ├── Runner (Event if skipped)
//	        └── Judge (Generation)
type Tracer interface {
	StartTrace(runID string, opts TraceOptions) TraceContext
	StartIteration(trace TraceContext, name string, opts SpanOptions) SpanContext
	RecordGeneration(span SpanContext, gen GenerationInput)
	RecordSkipped(span SpanContext, component string, reason string)
	EndIteration(span SpanContext, status string, durationMs int64)
	CompleteTrace(trace TraceContext, opts CompleteOptions)
	Flush(ctx context.Context) error
	Stop(ctx context.Context) error
}

// TraceContext holds the context for an active trace (run level).
type TraceContext struct {
	TraceID  string
	RunID    string
	Metadata map[string]string
}

// SpanContext holds the context for an active span (iteration level).
type SpanContext struct {
	SpanID  string
	Name    string
	TraceID string
}

// TraceOptions configures a new trace.
type TraceOptions struct {
	Model         string
	Description   string
	MaxIterations int
}

// SpanOptions configures a new span.
type SpanOptions struct {
	Round     int
	Iteration int
	Metadata  map[string]string
}

// GenerationInput describes a model invocation to record.
type GenerationInput struct {
	Name       string // "Generator" or "Judge"
	Model      string
	Input      string // Prompt text sent to the model
	Output     string // Response text from the model
	Status     string // "completed" or "error"
	DurationMs int64
}

// CompleteOptions configures trace completion.
type CompleteOptions struct {
	Status string // "finalized" or "aborted"
	Passes int
	Fails  int
}
