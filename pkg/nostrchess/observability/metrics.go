package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Ingest outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

// Frame directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
	// DirectionDropped marks outbound frames that never reached a socket.
	DirectionDropped = "dropped"
)

// MetricsRecorder records nostrchess metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordIngest records one ingest attempt by event kind and outcome.
	RecordIngest(ctx context.Context, kind int, outcome string)

	// RecordFrame records a wire frame by direction and type.
	RecordFrame(ctx context.Context, direction, frameType string)

	// RecordReconnect records a scheduled reconnect.
	RecordReconnect(ctx context.Context, failures int, delay time.Duration)

	// RecordResolve records a head resolution.
	RecordResolve(ctx context.Context, duration time.Duration, depth int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	ingested     metric.Int64Counter
	frames       metric.Int64Counter
	reconnects   metric.Int64Counter
	backoff      metric.Float64Histogram
	resolveTime  metric.Float64Histogram
	resolveDepth metric.Int64Histogram
}

// newOtelMetrics creates instruments on the global meter provider.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("nostrchess")

	ingested, err := meter.Int64Counter("nostrchess.events.ingested",
		metric.WithDescription("Number of ingest attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	frames, err := meter.Int64Counter("nostrchess.relay.frames",
		metric.WithDescription("Number of relay frames by direction and type"),
	)
	if err != nil {
		return nil, err
	}

	reconnects, err := meter.Int64Counter("nostrchess.relay.reconnects",
		metric.WithDescription("Number of scheduled reconnects"),
	)
	if err != nil {
		return nil, err
	}

	backoff, err := meter.Float64Histogram("nostrchess.relay.backoff_ms",
		metric.WithDescription("Reconnect delay in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	resolveTime, err := meter.Float64Histogram("nostrchess.head.resolve_ms",
		metric.WithDescription("Head resolution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	resolveDepth, err := meter.Int64Histogram("nostrchess.head.depth",
		metric.WithDescription("Ply depth of the resolved head"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		ingested:     ingested,
		frames:       frames,
		reconnects:   reconnects,
		backoff:      backoff,
		resolveTime:  resolveTime,
		resolveDepth: resolveDepth,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordIngest records one ingest attempt.
func (m *otelMetrics) RecordIngest(ctx context.Context, kind int, outcome string) {
	m.ingested.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("kind", kind),
		attribute.String("outcome", outcome),
	))
}

// RecordFrame records a wire frame.
func (m *otelMetrics) RecordFrame(ctx context.Context, direction, frameType string) {
	m.frames.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("type", frameType),
	))
}

// RecordReconnect records a scheduled reconnect.
func (m *otelMetrics) RecordReconnect(ctx context.Context, failures int, delay time.Duration) {
	attrs := metric.WithAttributes(attribute.Int("failures", failures))
	m.reconnects.Add(ctx, 1, attrs)
	m.backoff.Record(ctx, float64(delay.Milliseconds()), attrs)
}

// RecordResolve records a head resolution.
func (m *otelMetrics) RecordResolve(ctx context.Context, duration time.Duration, depth int) {
	m.resolveTime.Record(ctx, float64(duration.Microseconds())/1000)
	m.resolveDepth.Record(ctx, int64(depth))
}
