package observability

import "context"

// NoOpTracer is a tracer that does nothing. It is used when no OTLP
// endpoint is configured.
type NoOpTracer struct{}

func (n *NoOpTracer) StartTrace(runID string, _ TraceOptions) TraceContext {
	return TraceContext{RunID: runID}
}

func (n *NoOpTracer) StartIteration(_ TraceContext, name string, _ SpanOptions) SpanContext {
	return SpanContext{Name: name}
}

func (n *NoOpTracer) RecordGeneration(_ SpanContext, _ GenerationInput) {}

func (n *NoOpTracer) RecordSkipped(_ SpanContext, _ string, _ string) {}

func (n *NoOpTracer) EndIteration(_ SpanContext, _ string, _ int64) {}

func (n *NoOpTracer) CompleteTrace(_ TraceContext, _ CompleteOptions) {}

func (n *NoOpTracer) Flush(_ context.Context) error { return nil }

func (n *NoOpTracer) Stop(_ context.Context) error { return nil }
