package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

// TestEnrichLogger tests node-context enrichment and the nil guard.
func TestEnrichLogger(t *testing.T) {
	logger, buf := captureLogger()

	enriched := EnrichLogger(logger, "n1", "image")
	require.NotNil(t, enriched)
	enriched.Info("hello")

	out := buf.String()
	assert.Contains(t, out, `"node_id":"n1"`)
	assert.Contains(t, out, `"node_type":"image"`)

	assert.Nil(t, EnrichLogger(nil, "n1", "image"))
}

// TestLogHelpers tests the field shapes of the lifecycle log helpers.
func TestLogHelpers(t *testing.T) {
	logger, buf := captureLogger()

	LogDispatch(logger, "n1", "video", 2)
	assert.Contains(t, buf.String(), "generation dispatched")
	assert.Contains(t, buf.String(), `"inputs":2`)
	buf.Reset()

	LogDispatchComplete(logger, "n1", 1234.5)
	assert.Contains(t, buf.String(), "generation completed")
	buf.Reset()

	LogDispatchError(logger, "n1", errors.New("quota exceeded"))
	assert.Contains(t, buf.String(), "generation failed")
	assert.Contains(t, buf.String(), "quota exceeded")
	buf.Reset()

	LogJobAccepted(logger, "n1", "video")
	assert.Contains(t, buf.String(), "generation job accepted")
	buf.Reset()

	LogPollError(logger, "n1", errors.New("connection refused"))
	assert.Contains(t, buf.String(), "status check failed")
	buf.Reset()

	LogRecovered(logger, "n1", "video", 3*time.Second)
	assert.Contains(t, buf.String(), "node recovered")
	assert.Contains(t, buf.String(), `"waited_ms":3000`)
	buf.Reset()

	LogRecoveryFailed(logger, "n1", "recovery timed out")
	assert.Contains(t, buf.String(), "node recovery failed")
	buf.Reset()

	LogFrameExtractError(logger, "n1", errors.New("ffmpeg exited 1"))
	assert.Contains(t, buf.String(), "last-frame extraction failed")
}

// TestLogHelpers_NilLogger tests that every helper tolerates a nil logger.
func TestLogHelpers_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		LogDispatch(nil, "n1", "image", 0)
		LogDispatchComplete(nil, "n1", 0)
		LogDispatchError(nil, "n1", errors.New("x"))
		LogJobAccepted(nil, "n1", "video")
		LogPollError(nil, "n1", errors.New("x"))
		LogRecovered(nil, "n1", "image", 0)
		LogRecoveryFailed(nil, "n1", "x")
		LogFrameExtractError(nil, "n1", errors.New("x"))
	})
}

// TestTimedOperation tests elapsed-time measurement.
func TestTimedOperation(t *testing.T) {
	elapsed := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	got := elapsed()
	assert.GreaterOrEqual(t, got, 0.0)
}

// TestNewMetricsRecorder tests that the default recorder records against
// the global meter provider without panicking, even when no provider is
// configured.
func TestNewMetricsRecorder(t *testing.T) {
	rec := NewMetricsRecorder()
	require.NotNil(t, rec)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		rec.RecordDispatch(ctx, "image", 120*time.Millisecond, nil)
		rec.RecordDispatch(ctx, "video", time.Second, errors.New("boom"))
		rec.RecordPoll(ctx, nil)
		rec.RecordPoll(ctx, errors.New("boom"))
		rec.RecordRecovery(ctx, true, 3*time.Second)
		rec.RecordFrameExtraction(ctx, false, 50*time.Millisecond)
	})
}

// TestNoopMetrics tests the disabled recorder.
func TestNoopMetrics(t *testing.T) {
	var rec MetricsRecorder = NoopMetrics{}
	ctx := context.Background()
	assert.NotPanics(t, func() {
		rec.RecordDispatch(ctx, "image", 0, nil)
		rec.RecordPoll(ctx, nil)
		rec.RecordRecovery(ctx, false, 0)
		rec.RecordFrameExtraction(ctx, true, 0)
	})
}

// TestSpanManager tests span lifecycle against the global tracer provider.
func TestSpanManager(t *testing.T) {
	sm := NewSpanManager()
	ctx := context.Background()

	spanCtx, span := sm.StartDispatchSpan(ctx, "n1", "image")
	require.NotNil(t, spanCtx)
	require.NotNil(t, span)
	sm.AddSpanEvent(spanCtx, "provider.selected")
	sm.EndSpanWithError(span, nil)

	_, span = sm.StartPollSpan(ctx, "n1")
	sm.EndSpanWithError(span, errors.New("boom"))

	assert.NotPanics(t, func() { sm.EndSpanWithError(nil, nil) })
}

// TestNoopSpanManager tests the disabled span manager.
func TestNoopSpanManager(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}
	ctx := context.Background()

	gotCtx, span := sm.StartDispatchSpan(ctx, "n1", "image")
	assert.Equal(t, ctx, gotCtx)
	assert.NotPanics(t, func() {
		sm.EndSpanWithError(span, errors.New("boom"))
		sm.AddSpanEvent(ctx, "ignored")
	})
}
