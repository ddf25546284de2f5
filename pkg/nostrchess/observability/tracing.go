package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartIngestSpan starts a span covering verify, classify and project.
	StartIngestSpan(ctx context.Context, eventID string, kind int) (context.Context, trace.Span)

	// StartResolveSpan starts a span for a head resolution.
	StartResolveSpan(ctx context.Context, gameID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager that uses the global OTel tracer
// provider. Configure the provider before calling this function:
//
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{tracer: otel.Tracer("nostrchess")}
}

// StartIngestSpan starts an ingest span.
func (m *otelSpanManager) StartIngestSpan(ctx context.Context, eventID string, kind int) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "nostrchess.ingest",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.Int("event.kind", kind),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartResolveSpan starts a resolve span.
func (m *otelSpanManager) StartResolveSpan(ctx context.Context, gameID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "nostrchess.resolve",
		trace.WithAttributes(
			attribute.String("game.id", gameID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
