// Package observability provides structured logging, metrics, and
// tracing for the generation-node lifecycle.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds node context to a logger.
// Returns a new logger with node_id and node_type fields.
func EnrichLogger(logger *slog.Logger, nodeID, nodeType string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogDispatch logs a generation dispatch.
func LogDispatch(logger *slog.Logger, nodeID, nodeType string, inputs int) {
	if logger == nil {
		return
	}
	logger.Info("generation dispatched",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
		slog.Int("inputs", inputs),
	)
}

// LogDispatchComplete logs a synchronous generation success.
func LogDispatchComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("generation completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDispatchError logs a failed dispatch (validation or provider error).
func LogDispatchError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("generation failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogJobAccepted logs an asynchronous job submission.
func LogJobAccepted(logger *slog.Logger, nodeID, nodeType string) {
	if logger == nil {
		return
	}
	logger.Info("generation job accepted",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogPollError logs a soft status-check failure. The node stays LOADING
// and is retried on the next tick.
func LogPollError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("status check failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogRecovered logs a node resolved by the recovery monitor.
func LogRecovered(logger *slog.Logger, nodeID string, kind string, waited time.Duration) {
	if logger == nil {
		return
	}
	logger.Info("node recovered",
		slog.String("node_id", nodeID),
		slog.String("kind", kind),
		slog.Float64("waited_ms", float64(waited.Milliseconds())),
	)
}

// LogRecoveryFailed logs a node moved to ERROR by a terminal status
// response or the watch ceiling.
func LogRecoveryFailed(logger *slog.Logger, nodeID, reason string) {
	if logger == nil {
		return
	}
	logger.Error("node recovery failed",
		slog.String("node_id", nodeID),
		slog.String("reason", reason),
	)
}

// LogFrameExtractError logs a non-fatal frame-extraction failure.
func LogFrameExtractError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("last-frame extraction failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in
// milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
