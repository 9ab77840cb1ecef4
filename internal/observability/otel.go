package observability

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultOTLPEndpoint is the local collector's OTLP/HTTP port.
	DefaultOTLPEndpoint = "http://127.0.0.1:4318"

	instrumentationName = "github.com/andywolf/codeloop"

	// maxAttrLen caps prompt and response text stored on spans.
	maxAttrLen = 4096
)

// OTelConfig controls OTLP exporter setup.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
}

type activeSpan struct {
	ctx  context.Context
	span trace.Span
}

// OTelTracer maps runs and iterations onto OpenTelemetry spans.
type OTelTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer

	mu     sync.Mutex
	traces map[string]activeSpan
	spans  map[string]activeSpan
}

// NewOTLPTracer exports spans over OTLP/HTTP to cfg.Endpoint.
func NewOTLPTracer(ctx context.Context, cfg OTelConfig) (*OTelTracer, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("service name required")
	}
	ep := cfg.Endpoint
	if ep == "" {
		ep = DefaultOTLPEndpoint
	}
	endpoint, insecure := ep, cfg.Insecure
	if strings.Contains(ep, "://") {
		u, err := url.Parse(ep)
		if err != nil {
			return nil, err
		}
		endpoint = u.Host
		insecure = insecure || u.Scheme == "http"
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	return NewOTelTracer(tp), nil
}

// NewOTelTracer wraps an existing provider.
func NewOTelTracer(tp *sdktrace.TracerProvider) *OTelTracer {
	return &OTelTracer{
		provider: tp,
		tracer:   tp.Tracer(instrumentationName),
		traces:   make(map[string]activeSpan),
		spans:    make(map[string]activeSpan),
	}
}

// StartTrace opens the root span for a run.
func (t *OTelTracer) StartTrace(runID string, opts TraceOptions) TraceContext {
	ctx, span := t.tracer.Start(context.Background(), "run",
		trace.WithAttributes(
			attribute.String("codeloop.run_id", runID),
			attribute.String("codeloop.model", opts.Model),
			attribute.String("codeloop.description", truncate(opts.Description)),
			attribute.Int("codeloop.max_iterations", opts.MaxIterations),
		))

	traceID := span.SpanContext().TraceID().String()
	t.mu.Lock()
	t.traces[traceID] = activeSpan{ctx: ctx, span: span}
	t.mu.Unlock()

	return TraceContext{
		TraceID:  traceID,
		RunID:    runID,
		Metadata: map[string]string{"model": opts.Model},
	}
}

// StartIteration opens a child span of the run for one code iteration.
func (t *OTelTracer) StartIteration(tc TraceContext, name string, opts SpanOptions) SpanContext {
	t.mu.Lock()
	parent, ok := t.traces[tc.TraceID]
	t.mu.Unlock()
	ctx := context.Background()
	if ok {
		ctx = parent.ctx
	}

	attrs := []attribute.KeyValue{
		attribute.Int("codeloop.round", opts.Round),
		attribute.Int("codeloop.iteration", opts.Iteration),
	}
	for k, v := range opts.Metadata {
		attrs = append(attrs, attribute.String("codeloop."+k, v))
	}
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	spanID := uuid.New().String()
	t.mu.Lock()
	t.spans[spanID] = activeSpan{ctx: ctx, span: span}
	t.mu.Unlock()

	return SpanContext{SpanID: spanID, Name: name, TraceID: tc.TraceID}
}

// RecordGeneration adds a completed child span for one model call.
func (t *OTelTracer) RecordGeneration(sc SpanContext, gen GenerationInput) {
	parent, ok := t.lookupSpan(sc.SpanID)
	if !ok {
		return
	}
	end := time.Now()
	start := end.Add(-time.Duration(gen.DurationMs) * time.Millisecond)
	_, span := t.tracer.Start(parent.ctx, gen.Name,
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("gen_ai.request.model", gen.Model),
			attribute.String("codeloop.input", truncate(gen.Input)),
			attribute.String("codeloop.output", truncate(gen.Output)),
			attribute.String("codeloop.status", gen.Status),
		))
	if gen.Status == "error" {
		span.SetStatus(codes.Error, "model call failed")
	}
	span.End(trace.WithTimestamp(end))
}

// RecordSkipped adds an event to the iteration span.
func (t *OTelTracer) RecordSkipped(sc SpanContext, component string, reason string) {
	s, ok := t.lookupSpan(sc.SpanID)
	if !ok {
		return
	}
	s.span.AddEvent("skipped", trace.WithAttributes(
		attribute.String("codeloop.component", component),
		attribute.String("codeloop.reason", reason),
	))
}

// EndIteration closes the iteration span with its verdict.
func (t *OTelTracer) EndIteration(sc SpanContext, status string, durationMs int64) {
	t.mu.Lock()
	s, ok := t.spans[sc.SpanID]
	delete(t.spans, sc.SpanID)
	t.mu.Unlock()
	if !ok {
		return
	}
	s.span.SetAttributes(
		attribute.String("codeloop.verdict", status),
		attribute.Int64("codeloop.duration_ms", durationMs),
	)
	if status == "error" {
		s.span.SetStatus(codes.Error, "iteration failed")
	}
	s.span.End()
}

// CompleteTrace closes the run span.
func (t *OTelTracer) CompleteTrace(tc TraceContext, opts CompleteOptions) {
	t.mu.Lock()
	s, ok := t.traces[tc.TraceID]
	delete(t.traces, tc.TraceID)
	t.mu.Unlock()
	if !ok {
		return
	}
	s.span.SetAttributes(
		attribute.String("codeloop.state", opts.Status),
		attribute.Int("codeloop.passes", opts.Passes),
		attribute.Int("codeloop.fails", opts.Fails),
	)
	if opts.Status == "aborted" {
		s.span.SetStatus(codes.Error, "run aborted")
	}
	s.span.End()
}

// Flush exports any buffered spans.
func (t *OTelTracer) Flush(ctx context.Context) error {
	return t.provider.ForceFlush(ctx)
}

// Stop flushes and shuts down the provider.
func (t *OTelTracer) Stop(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

func (t *OTelTracer) lookupSpan(id string) (activeSpan, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spans[id]
	return s, ok
}

func truncate(s string) string {
	if len(s) <= maxAttrLen {
		return s
	}
	return s[:maxAttrLen] + "...[truncated]"
}
