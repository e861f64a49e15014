package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestWithTraceContextInjectsIDs(t *testing.T) {
	logger, buf := captureLogger()

	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)

	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	WithTraceContext(ctx, logger).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, traceID.String(), line["trace_id"])
	assert.Equal(t, spanID.String(), line["span_id"])
}

func TestWithTraceContextWithoutSpan(t *testing.T) {
	logger, buf := captureLogger()

	WithTraceContext(context.Background(), logger).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	_, hasTraceID := line["trace_id"]
	assert.False(t, hasTraceID)
}

func TestWithFields(t *testing.T) {
	logger, buf := captureLogger()

	WithFields(logger, map[string]interface{}{
		"operation": "catalog.search",
		"count":     3,
	}).Info("done")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "catalog.search", line["operation"])
	assert.Equal(t, float64(3), line["count"])
}

func TestLoggerContextRoundTrip(t *testing.T) {
	logger, _ := captureLogger()

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	assert.NotNil(t, FromContext(context.Background()))
}
