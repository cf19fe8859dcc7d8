package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records generation-lifecycle metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDispatch records a generation dispatch with its duration and
	// error status. For async providers the duration covers submission only.
	RecordDispatch(ctx context.Context, nodeType string, duration time.Duration, err error)

	// RecordPoll records one status check for a watched node.
	RecordPoll(ctx context.Context, err error)

	// RecordRecovery records a node leaving LOADING through the monitor,
	// with the total time it was watched.
	RecordRecovery(ctx context.Context, success bool, waited time.Duration)

	// RecordFrameExtraction records a last-frame extraction attempt.
	RecordFrameExtraction(ctx context.Context, success bool, duration time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	dispatches      metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	dispatchErrors  metric.Int64Counter
	pollChecks      metric.Int64Counter
	pollErrors      metric.Int64Counter
	recoveries      metric.Int64Counter
	recoveryWait    metric.Float64Histogram
	frameExtracts   metric.Int64Counter
	frameLatency    metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("gencanvas")

	dispatches, err := meter.Int64Counter("gencanvas.dispatch.total",
		metric.WithDescription("Number of generation dispatches"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("gencanvas.dispatch.latency_ms",
		metric.WithDescription("Dispatch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	dispatchErrors, err := meter.Int64Counter("gencanvas.dispatch.errors",
		metric.WithDescription("Number of failed dispatches"),
	)
	if err != nil {
		return nil, err
	}

	pollChecks, err := meter.Int64Counter("gencanvas.poll.checks",
		metric.WithDescription("Number of recovery status checks"),
	)
	if err != nil {
		return nil, err
	}

	pollErrors, err := meter.Int64Counter("gencanvas.poll.errors",
		metric.WithDescription("Number of failed status checks"),
	)
	if err != nil {
		return nil, err
	}

	recoveries, err := meter.Int64Counter("gencanvas.recovery.total",
		metric.WithDescription("Number of nodes resolved by the recovery monitor"),
	)
	if err != nil {
		return nil, err
	}

	recoveryWait, err := meter.Float64Histogram("gencanvas.recovery.wait_ms",
		metric.WithDescription("Time a node spent watched before resolving"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	frameExtracts, err := meter.Int64Counter("gencanvas.frames.extractions",
		metric.WithDescription("Number of last-frame extraction attempts"),
	)
	if err != nil {
		return nil, err
	}

	frameLatency, err := meter.Float64Histogram("gencanvas.frames.latency_ms",
		metric.WithDescription("Last-frame extraction latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		dispatches:      dispatches,
		dispatchLatency: dispatchLatency,
		dispatchErrors:  dispatchErrors,
		pollChecks:      pollChecks,
		pollErrors:      pollErrors,
		recoveries:      recoveries,
		recoveryWait:    recoveryWait,
		frameExtracts:   frameExtracts,
		frameLatency:    frameLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordDispatch records a generation dispatch.
func (m *otelMetrics) RecordDispatch(ctx context.Context, nodeType string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_type", nodeType),
	}

	m.dispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.dispatchLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.dispatchErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordPoll records one status check.
func (m *otelMetrics) RecordPoll(ctx context.Context, err error) {
	m.pollChecks.Add(ctx, 1)
	if err != nil {
		m.pollErrors.Add(ctx, 1)
	}
}

// RecordRecovery records a monitor resolution.
func (m *otelMetrics) RecordRecovery(ctx context.Context, success bool, waited time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.recoveries.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.recoveryWait.Record(ctx, float64(waited.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordFrameExtraction records a frame extraction attempt.
func (m *otelMetrics) RecordFrameExtraction(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.frameExtracts.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.frameLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}
