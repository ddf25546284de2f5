// Package observability provides structured logging, metrics and tracing for
// the nostrchess engine.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// Every Log* helper tolerates a nil logger.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds relay and game context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "wss://relay.example", "ab12...")
//	enriched.Info("resolving") // includes relay and game_id
func EnrichLogger(logger *slog.Logger, relayURL, gameID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	attrs := make([]any, 0, 2)
	if relayURL != "" {
		attrs = append(attrs, slog.String("relay", relayURL))
	}
	if gameID != "" {
		attrs = append(attrs, slog.String("game_id", gameID))
	}
	return logger.With(attrs...)
}

// LogEventRejected logs an inbound event that failed verification.
// Untrusted input failures stay at debug level.
func LogEventRejected(logger *slog.Logger, eventID string, err error) {
	if logger == nil {
		return
	}
	logger.Debug("event rejected",
		slog.String("event_id", eventID),
		slog.String("error", err.Error()),
	)
}

// LogEventStored logs a newly accepted event and the projections it produced.
func LogEventStored(logger *slog.Logger, eventID string, kind int, projections []string) {
	if logger == nil {
		return
	}
	logger.Debug("event stored",
		slog.String("event_id", eventID),
		slog.Int("kind", kind),
		slog.Any("projections", projections),
	)
}

// LogStoreError logs a persistence failure.
func LogStoreError(logger *slog.Logger, op string, eventID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("store operation failed",
		slog.String("operation", op),
		slog.String("event_id", eventID),
		slog.String("error", err.Error()),
	)
}

// LogRelayState logs a connectivity transition.
func LogRelayState(logger *slog.Logger, url, state string, healthy bool, failures int) {
	if logger == nil {
		return
	}
	logger.Info("relay state changed",
		slog.String("relay", url),
		slog.String("state", state),
		slog.Bool("healthy", healthy),
		slog.Int("failures", failures),
	)
}

// LogRelayReconnect logs a scheduled reconnect.
func LogRelayReconnect(logger *slog.Logger, url string, failures int, delay time.Duration, cause error) {
	if logger == nil {
		return
	}
	attrs := []any{
		slog.String("relay", url),
		slog.Int("failures", failures),
		slog.Duration("delay", delay),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	logger.Info("relay reconnect scheduled", attrs...)
}

// LogRelayNotice logs a NOTICE frame from the relay.
func LogRelayNotice(logger *slog.Logger, url, message string) {
	if logger == nil {
		return
	}
	logger.Info("relay notice",
		slog.String("relay", url),
		slog.String("message", message),
	)
}

// LogFrameDropped logs an outbound frame discarded while disconnected or
// after a failed write.
func LogFrameDropped(logger *slog.Logger, url, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("frame dropped",
		slog.String("relay", url),
		slog.String("reason", reason),
	)
}

// LogIllegalSuccessor logs a move candidate rejected by the rules engine.
func LogIllegalSuccessor(logger *slog.Logger, gameID, moveID, parentID string, err error) {
	if logger == nil {
		return
	}
	logger.Debug("illegal successor",
		slog.String("game_id", gameID),
		slog.String("move_id", moveID),
		slog.String("parent_id", parentID),
		slog.String("error", err.Error()),
	)
}

// LogHeadResolved logs the outcome of a head resolution.
func LogHeadResolved(logger *slog.Logger, gameID, headID string, depth int, searching bool) {
	if logger == nil {
		return
	}
	logger.Debug("head resolved",
		slog.String("game_id", gameID),
		slog.String("head_id", headID),
		slog.Int("depth", depth),
		slog.Bool("searching", searching),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
