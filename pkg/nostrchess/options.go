package nostrchess

import (
	"log/slog"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/chess"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/codec"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/observability"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/relay"
	"github.com/randalmurphal/nostrchess/pkg/nostrchess/store"
)

// clientOptions collects Option values before the client is built.
type clientOptions struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	rules   chess.Rules
	backend store.Backend
	signer  codec.Signer
	dialer  relay.Dialer
}

func defaultOptions() clientOptions {
	return clientOptions{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		rules:   chess.Standard{},
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithLogger sets the logger. Without one the client is silent.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// WithMetrics enables metrics.
//
// Example:
//
//	client, err := nostrchess.New(cfg, nostrchess.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *clientOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSpanManager enables tracing.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(o *clientOptions) {
		if sm != nil {
			o.spans = sm
		}
	}
}

// WithRules replaces the chess rules used for ply counting and legality.
func WithRules(r chess.Rules) Option {
	return func(o *clientOptions) {
		if r != nil {
			o.rules = r
		}
	}
}

// WithBackend replaces the backend chosen from the database path.
func WithBackend(b store.Backend) Option {
	return func(o *clientOptions) { o.backend = b }
}

// WithSigner replaces the signer built from the configured private key.
func WithSigner(s codec.Signer) Option {
	return func(o *clientOptions) { o.signer = s }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d relay.Dialer) Option {
	return func(o *clientOptions) { o.dialer = d }
}
