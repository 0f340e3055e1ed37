// Package tracing implements the OpenTelemetry distributed tracing the
// engine wraps its turn/LLM/tool spans in, grounded on
// _examples/haasonsaas-nexus/internal/observability/tracing.go's Tracer
// (OTLP-over-gRPC exporter, resource/sampler setup, Start/StartSpan/
// RecordError/SetAttributes helpers), narrowed from that teacher's
// channel/webhook span helpers to this spec's turn/tool span helpers.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer. An empty Endpoint disables export: spans
// are still created (so the caller's span-shaped code paths run
// unconditionally) but go nowhere.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP/gRPC collector address, e.g. "localhost:4317"
	SamplingRate   float64
	EnableInsecure bool
}

// Tracer wraps an otel trace.Tracer. A nil *Tracer is valid: Start
// returns the input ctx and a no-op span, so the engine's span-wrapped
// code reads the same whether or not tracing was configured.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Tracer and a shutdown func that must be called on
// process exit to flush buffered spans. If cfg.Endpoint is empty or the
// exporter cannot be built, the returned Tracer is still usable but
// exports nothing.
func New(cfg Config) (*Tracer, func(context.Context) error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "wave"
	}
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, noop
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.EnableInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(opts...))
	if err != nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, noop
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate <= 0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate >= 1:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)},
		func(ctx context.Context) error { return provider.Shutdown(ctx) }
}

// Start opens a span named name as a child of any span in ctx.
func (t *Tracer) Start(ctx context.Context, name string, kind trace.SpanKind) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind))
}

// RecordError records err on span and marks it errored, if err is
// non-nil.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes attaches string-valued key/value pairs to span.
func (t *Tracer) SetAttributes(span trace.Span, keyvals ...string) {
	if span == nil || len(keyvals) < 2 {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		attrs = append(attrs, attribute.String(keyvals[i], keyvals[i+1]))
	}
	span.SetAttributes(attrs...)
}

// TraceTurn opens the root span for one SendMessage call.
func (t *Tracer) TraceTurn(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, "turn", trace.SpanKindInternal)
	t.SetAttributes(span, "session_id", sessionID)
	return ctx, span
}

// TraceTool opens a child span for one tool call.
func (t *Tracer) TraceTool(ctx context.Context, toolName, callID string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, "tool."+toolName, trace.SpanKindInternal)
	t.SetAttributes(span, "tool_name", toolName, "call_id", callID)
	return ctx, span
}

// TraceLLMRequest opens a child span for one streamed completion call.
func (t *Tracer) TraceLLMRequest(ctx context.Context, model string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, "llm.stream", trace.SpanKindClient)
	t.SetAttributes(span, "model", model)
	return ctx, span
}
