package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newController(t *testing.T, opts Options) (*Controller, *tracetest.InMemoryExporter) {
	t.Helper()
	if opts.ServiceName == "" {
		opts.ServiceName = "catalog-pulse-test"
	}
	controller, exporter := NewTestController(opts)
	t.Cleanup(func() {
		_ = controller.Shutdown(context.Background())
	})
	return controller, exporter
}

func findAttr(t *testing.T, attrs []attribute.KeyValue, key string) attribute.Value {
	t.Helper()
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	t.Fatalf("attribute %q not found", key)
	return attribute.Value{}
}

func hasAttr(attrs []attribute.KeyValue, key string) bool {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return true
		}
	}
	return false
}

func TestOperationLifecycle(t *testing.T) {
	controller, exporter := newController(t, Options{
		Environment:       "sandbox",
		MerchantID:        "M_DEFAULT",
		DefaultSampleRate: 1.0,
		SensitiveFields:   []string{"access_token"},
	})

	op := controller.StartOperation(context.Background(), "catalog.batch_upsert", map[string]any{
		"merchant_id":  "M_OVERRIDE",
		"access_token": "sq0atp-secret",
		"batch_size":   42,
	})
	require.NotEmpty(t, op.TraceID)
	assert.Equal(t, 1, controller.ActiveCount())

	op.End(&Result{ObjectCount: 42, Version: "2026-07-16"}, nil, nil)
	assert.Equal(t, 0, controller.ActiveCount())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "catalog.batch_upsert", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)
	assert.Equal(t, "M_OVERRIDE", findAttr(t, span.Attributes, "merchant_id").AsString())
	assert.Equal(t, "sandbox", findAttr(t, span.Attributes, "environment").AsString())
	assert.Equal(t, RedactionMarker, findAttr(t, span.Attributes, "access_token").AsString())
	assert.Equal(t, int64(42), findAttr(t, span.Attributes, "catalog.object_count").AsInt64())
	assert.Equal(t, "2026-07-16", findAttr(t, span.Attributes, "catalog.reported_version").AsString())
}

func TestEndUnknownTraceIDIsNoOp(t *testing.T) {
	controller, exporter := newController(t, Options{DefaultSampleRate: 1.0})

	controller.EndOperation("0123456789abcdef0123456789abcdef", &Result{}, nil, nil)

	assert.Empty(t, exporter.GetSpans())
	assert.Equal(t, 0, controller.ActiveCount())
}

func TestDoubleEndEndsSpanOnce(t *testing.T) {
	controller, exporter := newController(t, Options{DefaultSampleRate: 1.0})

	op := controller.StartOperation(context.Background(), "catalog.search", nil)
	op.End(nil, nil, nil)
	op.End(nil, errors.New("late failure"), nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status.Code, "second end must not rewrite the outcome")
}

func TestErrorOutcomeClassified(t *testing.T) {
	controller, exporter := newController(t, Options{
		DefaultSampleRate: 1.0,
		Classify: func(err error) (string, string, bool) {
			return "catalog_api", "RATE_LIMITED", true
		},
	})

	op := controller.StartOperation(context.Background(), "catalog.batch_upsert", nil)
	op.End(nil, errors.New("429 too many requests"), nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, codes.Error, span.Status.Code)
	assert.Equal(t, "catalog_api", findAttr(t, span.Attributes, "error.type").AsString())
	assert.Equal(t, "RATE_LIMITED", findAttr(t, span.Attributes, "error.code").AsString())
	assert.True(t, findAttr(t, span.Attributes, "error.retryable").AsBool())
	assert.Equal(t, "warning", findAttr(t, span.Attributes, "error.severity").AsString())
	require.Len(t, span.Events, 1, "error must be recorded as a span event")
}

func TestErrorMarkedStartSampledAtZeroRate(t *testing.T) {
	controller, exporter := newController(t, Options{DefaultSampleRate: 0})

	op := controller.StartOperation(context.Background(), "catalog.retry_pass", map[string]any{
		"error.type": "transport",
	})
	op.End(nil, errors.New("connection reset"), nil)

	require.Len(t, exporter.GetSpans(), 1, "error-marked operations bypass the sampling rate")
}

func TestWrapReturnsErrorUnchanged(t *testing.T) {
	controller, _ := newController(t, Options{DefaultSampleRate: 1.0})
	boom := errors.New("boom")

	result, err := controller.Wrap(context.Background(), "catalog.search", nil,
		func(ctx context.Context) (*Result, error) {
			return nil, boom
		})

	assert.Nil(t, result)
	assert.Same(t, boom, err)
	assert.Equal(t, 0, controller.ActiveCount())
}

func TestChildSpans(t *testing.T) {
	controller, exporter := newController(t, Options{DefaultSampleRate: 1.0})

	op := controller.StartOperation(context.Background(), "catalog.batch_upsert", nil)

	child := controller.AddChildSpan(op.TraceID, "catalog.batch_upsert.chunk", map[string]any{"chunk": 1})
	require.NotNil(t, child)
	child.End(nil)

	op.End(&Result{ObjectCount: 10}, nil, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	// Child exported first; it shares the parent's trace.
	assert.Equal(t, "catalog.batch_upsert.chunk", spans[0].Name)
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestChildSpanAfterParentEnded(t *testing.T) {
	controller, _ := newController(t, Options{DefaultSampleRate: 1.0})

	op := controller.StartOperation(context.Background(), "catalog.search", nil)
	op.End(nil, nil, nil)

	child := controller.AddChildSpan(op.TraceID, "catalog.search.page", nil)
	assert.Nil(t, child)
	child.End(nil) // nil-safe
}

func TestAbortOpenSpans(t *testing.T) {
	controller, exporter := newController(t, Options{DefaultSampleRate: 1.0})

	first := controller.StartOperation(context.Background(), "catalog.batch_upsert", nil)
	_ = controller.StartOperation(context.Background(), "catalog.search", nil)
	child := controller.AddChildSpan(first.TraceID, "catalog.batch_upsert.chunk", nil)
	require.NotNil(t, child)

	aborted := controller.AbortOpenSpans()
	assert.Equal(t, 2, aborted)
	assert.Equal(t, 0, controller.ActiveCount())

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	for _, span := range spans {
		assert.Equal(t, codes.Error, span.Status.Code)
		assert.True(t, findAttr(t, span.Attributes, "aborted").AsBool())
	}

	// Aborting again finds nothing.
	assert.Equal(t, 0, controller.AbortOpenSpans())
}

func TestActiveOperationsSummary(t *testing.T) {
	controller, _ := newController(t, Options{DefaultSampleRate: 1.0, MerchantID: "M1"})

	op := controller.StartOperation(context.Background(), "catalog.batch_upsert", nil)

	summaries := controller.ActiveOperations()
	require.Len(t, summaries, 1)
	assert.Equal(t, op.TraceID, summaries[0].TraceID)
	assert.Equal(t, "catalog.batch_upsert", summaries[0].Operation)
	assert.Equal(t, "M1", summaries[0].Merchant)
	assert.False(t, summaries[0].StartedAt.IsZero())

	op.End(nil, nil, nil)
	assert.Empty(t, controller.ActiveOperations())
}

func TestForceSampleTakesEffect(t *testing.T) {
	controller, exporter := newController(t, Options{DefaultSampleRate: 0})

	op := controller.StartOperation(context.Background(), "catalog.search", nil)
	op.End(nil, nil, nil)
	assert.Empty(t, exporter.GetSpans())

	controller.ForceSample("catalog.search", 1.0)

	op = controller.StartOperation(context.Background(), "catalog.search", nil)
	op.End(nil, nil, nil)
	assert.Len(t, exporter.GetSpans(), 1)
}

func TestScrubSensitiveData(t *testing.T) {
	controller, _ := newController(t, Options{SensitiveFields: []string{"api_key"}})

	scrubbed := controller.ScrubSensitiveData(map[string]any{"api_key": "k", "ok": "v"}).(map[string]any)
	assert.Equal(t, RedactionMarker, scrubbed["api_key"])
	assert.Equal(t, "v", scrubbed["ok"])
}
