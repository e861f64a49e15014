package tracing

import (
	"context"
	"log/slog"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogExporter is a SpanExporter that emits completed spans as structured
// log lines. There is no tracing backend in this deployment; sampled spans
// land in the log stream where the collection pipeline picks them up.
type LogExporter struct {
	logger *slog.Logger
}

// NewLogExporter creates a LogExporter writing to the given logger.
func NewLogExporter(logger *slog.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		attrs := []slog.Attr{
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
			slog.String("operation", span.Name()),
			slog.String("status", span.Status().Code.String()),
			slog.Duration("duration", span.EndTime().Sub(span.StartTime())),
		}
		if parent := span.Parent(); parent.IsValid() {
			attrs = append(attrs, slog.String("parent_span_id", parent.SpanID().String()))
		}
		e.logger.LogAttrs(ctx, slog.LevelDebug, "span completed", attrs...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogExporter) Shutdown(ctx context.Context) error {
	return nil
}
