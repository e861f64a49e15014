package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// ClassifyFunc maps an arbitrary error to classification dimensions.
// The controller stays free of dependencies on the metrics layer; the
// classifier is injected at construction.
type ClassifyFunc func(err error) (errType, code string, retryable bool)

// Result carries the success-side attributes attached when an operation ends.
type Result struct {
	// ObjectCount is the number of catalog objects touched by the operation
	ObjectCount int

	// Version is the catalog API version the response reported, if any
	Version string
}

// Options configures a Controller.
type Options struct {
	// ServiceName identifies the tracer
	ServiceName string

	// Environment and MerchantID are bound to every span as context
	Environment string
	MerchantID  string

	// DefaultSampleRate and OperationRates configure the adaptive sampler
	DefaultSampleRate float64
	OperationRates    map[string]float64

	// SensitiveFields configures the scrubber
	SensitiveFields []string

	// Logger receives completion logs and exported spans
	Logger *slog.Logger

	// Classify maps operation errors to classification attributes.
	// Nil falls back to a type-only classification.
	Classify ClassifyFunc

	// Exporter overrides the span exporter. Nil uses a LogExporter
	// writing to Logger. Tests inject tracetest exporters here.
	Exporter sdktrace.SpanExporter
}

// Controller owns the span lifecycle: it starts operations, tracks them in
// an active-span map keyed by trace id, and ends each exactly once. Ending
// an unknown trace id is a no-op. All attribute maps pass through the
// scrubber before touching a span or a log line.
type Controller struct {
	tracer      trace.Tracer
	provider    *sdktrace.TracerProvider
	sampler     *AdaptiveSampler
	scrubber    *Scrubber
	logger      *slog.Logger
	classify    ClassifyFunc
	environment string
	merchantID  string

	mu     sync.Mutex
	active map[string]*activeOperation
}

// activeOperation is the controller-owned record of a started span.
type activeOperation struct {
	name     string
	ctx      context.Context
	span     trace.Span
	start    time.Time
	merchant string

	// children started under this operation and not yet ended;
	// they are aborted together with the parent at shutdown
	children map[trace.SpanID]trace.Span
}

// Operation is the caller-facing handle returned by StartOperation.
type Operation struct {
	// TraceID identifies the operation for EndOperation and AddChildSpan
	TraceID string

	// Context carries the span; pass it to the wrapped work so child
	// spans and log correlation attach correctly
	Context context.Context

	// Logger is pre-bound with the operation name and trace id
	Logger *slog.Logger

	controller *Controller
}

// End completes the operation. It is safe to call at most the operation's
// natural end; a second call is a no-op.
func (o *Operation) End(result *Result, err error, extra map[string]any) {
	o.controller.EndOperation(o.TraceID, result, err, extra)
}

// ChildSpan is a handle for a nested span under an active operation.
type ChildSpan struct {
	SpanID     string
	controller *Controller
	parentID   string
	span       trace.Span
}

// End completes the child span, marking it failed when err is non-nil.
// Safe to call on a nil receiver: AddChildSpan returns nil when the parent
// is no longer active.
func (c *ChildSpan) End(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	} else {
		c.span.SetStatus(codes.Ok, "")
	}
	c.span.End()
	c.controller.forgetChild(c.parentID, c.span.SpanContext().SpanID())
}

// NewController creates a Controller with its own tracer provider.
// The provider samples through the adaptive sampler wrapped in ParentBased,
// so a sampling decision is computed exactly once per trace.
func NewController(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Classify == nil {
		opts.Classify = func(err error) (string, string, bool) {
			return "unknown", "UNKNOWN_ERROR", false
		}
	}

	sampler := NewAdaptiveSampler(opts.DefaultSampleRate, opts.OperationRates, time.Now().UnixNano())

	// Injected exporters (tests) get a synchronous processor so spans are
	// visible immediately; the default log exporter goes through a batcher.
	var processor sdktrace.TracerProviderOption
	if opts.Exporter != nil {
		processor = sdktrace.WithSyncer(opts.Exporter)
	} else {
		processor = sdktrace.WithBatcher(NewLogExporter(opts.Logger))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		processor,
	)

	return &Controller{
		tracer:      provider.Tracer(opts.ServiceName),
		provider:    provider,
		sampler:     sampler,
		scrubber:    NewScrubber(opts.SensitiveFields),
		logger:      opts.Logger,
		classify:    opts.Classify,
		environment: opts.Environment,
		merchantID:  opts.MerchantID,
		active:      make(map[string]*activeOperation),
	}
}

// NewTestController creates a Controller backed by an in-memory exporter,
// returned alongside it for span assertions.
func NewTestController(opts Options) (*Controller, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	opts.Exporter = exporter
	return NewController(opts), exporter
}

// StartOperation creates a span for a unit of work, computes its sampling
// decision, binds merchant and environment context, and registers it in the
// active-span map. Attributes are scrubbed before attachment.
func (c *Controller) StartOperation(ctx context.Context, name string, attrs map[string]any) *Operation {
	if ctx == nil {
		ctx = context.Background()
	}

	scrubbed := c.scrubber.ScrubMap(attrs)
	merchant := c.merchantID
	if m, ok := scrubbed["merchant_id"].(string); ok && m != "" {
		merchant = m
	}

	kvs := attrsToKeyValues(scrubbed)
	kvs = append(kvs,
		attribute.String("environment", c.environment),
		attribute.String("merchant_id", merchant),
	)

	spanCtx, span := c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(kvs...),
	)
	traceID := span.SpanContext().TraceID().String()

	c.mu.Lock()
	c.active[traceID] = &activeOperation{
		name:     name,
		ctx:      spanCtx,
		span:     span,
		start:    time.Now(),
		merchant: merchant,
		children: make(map[trace.SpanID]trace.Span),
	}
	c.mu.Unlock()

	logger := c.logger.With(
		slog.String("operation", name),
		slog.String("trace_id", traceID),
		slog.String("merchant_id", merchant),
	)

	return &Operation{
		TraceID:    traceID,
		Context:    spanCtx,
		Logger:     logger,
		controller: c,
	}
}

// EndOperation completes the span registered under traceID. Unknown trace
// ids are ignored: the call is an idempotent no-op, never an error.
//
// On failure the span gets ERROR status plus classified error attributes;
// on success it gets OK status plus result-derived attributes. A structured
// completion log is emitted either way, at error or info level.
func (c *Controller) EndOperation(traceID string, result *Result, opErr error, extra map[string]any) {
	c.mu.Lock()
	op, ok := c.active[traceID]
	if ok {
		delete(c.active, traceID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	duration := time.Since(op.start)
	span := op.span

	for _, kv := range attrsToKeyValues(c.scrubber.ScrubMap(extra)) {
		span.SetAttributes(kv)
	}

	logger := c.logger.With(
		slog.String("operation", op.name),
		slog.String("trace_id", traceID),
		slog.String("merchant_id", op.merchant),
		slog.Duration("duration", duration),
	)

	if opErr != nil {
		errType, code, retryable := c.classify(opErr)
		severity := "error"
		if retryable {
			severity = "warning"
		}
		span.RecordError(opErr)
		span.SetStatus(codes.Error, opErr.Error())
		span.SetAttributes(
			attribute.String("error.type", errType),
			attribute.String("error.code", code),
			attribute.Bool("error.retryable", retryable),
			attribute.String("error.severity", severity),
		)
		logger.Error("operation failed",
			slog.String("error_type", errType),
			slog.String("error_code", code),
			slog.Bool("retryable", retryable),
			slog.Any("error", opErr))
	} else {
		span.SetStatus(codes.Ok, "")
		if result != nil {
			span.SetAttributes(
				attribute.Int("catalog.object_count", result.ObjectCount),
			)
			if result.Version != "" {
				span.SetAttributes(attribute.String("catalog.reported_version", result.Version))
			}
		}
		logger.Info("operation completed")
	}

	span.End()
}

// AddChildSpan creates a nested span under an active operation. It returns
// nil when the parent is not active; ChildSpan.End is nil-safe so callers
// need not branch.
func (c *Controller) AddChildSpan(parentTraceID, name string, attrs map[string]any) *ChildSpan {
	c.mu.Lock()
	parent, ok := c.active[parentTraceID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	kvs := attrsToKeyValues(c.scrubber.ScrubMap(attrs))
	_, span := c.tracer.Start(parent.ctx, name, trace.WithAttributes(kvs...))

	c.mu.Lock()
	// the parent may have ended while we started the child
	if current, stillActive := c.active[parentTraceID]; stillActive {
		current.children[span.SpanContext().SpanID()] = span
	}
	c.mu.Unlock()

	return &ChildSpan{
		SpanID:     span.SpanContext().SpanID().String(),
		controller: c,
		parentID:   parentTraceID,
		span:       span,
	}
}

// Wrap runs fn inside a traced operation: start, call, end. The error from
// fn is returned unchanged.
func (c *Controller) Wrap(ctx context.Context, name string, attrs map[string]any, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	op := c.StartOperation(ctx, name, attrs)
	result, err := fn(op.Context)
	op.End(result, err, nil)
	return result, err
}

// ScrubSensitiveData exposes the controller's scrubber for callers that
// redact payloads outside the span path (log context, alert details).
func (c *Controller) ScrubSensitiveData(value any) any {
	return c.scrubber.Scrub(value)
}

// ForceSample overrides an operation's sampling rate at runtime.
func (c *Controller) ForceSample(operation string, rate float64) {
	c.sampler.ForceSample(operation, rate)
}

// SamplingStats returns the sampler's diagnostic snapshot.
func (c *Controller) SamplingStats() Stats {
	return c.sampler.SamplingStats()
}

// ActiveCount returns the number of operations currently in flight.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// ActiveOperations returns a summary of in-flight operations for dashboards.
func (c *Controller) ActiveOperations() []ActiveSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	summaries := make([]ActiveSummary, 0, len(c.active))
	for traceID, op := range c.active {
		summaries = append(summaries, ActiveSummary{
			TraceID:   traceID,
			Operation: op.name,
			Merchant:  op.merchant,
			StartedAt: op.start,
			Elapsed:   time.Since(op.start),
		})
	}
	return summaries
}

// ActiveSummary describes one in-flight operation.
type ActiveSummary struct {
	TraceID   string        `json:"trace_id"`
	Operation string        `json:"operation"`
	Merchant  string        `json:"merchant_id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// AbortOpenSpans marks every still-open span (and its children) as aborted
// and ends them. Called during shutdown so no span leaks unended.
func (c *Controller) AbortOpenSpans() int {
	c.mu.Lock()
	open := c.active
	c.active = make(map[string]*activeOperation)
	c.mu.Unlock()

	for _, op := range open {
		for _, child := range op.children {
			child.SetStatus(codes.Error, "aborted")
			child.SetAttributes(attribute.Bool("aborted", true))
			child.End()
		}
		op.span.SetStatus(codes.Error, "aborted")
		op.span.SetAttributes(attribute.Bool("aborted", true))
		op.span.End()
	}
	return len(open)
}

// Shutdown flushes and stops the tracer provider. Idempotent: the SDK
// treats repeated shutdowns as no-ops.
func (c *Controller) Shutdown(ctx context.Context) error {
	if err := c.provider.ForceFlush(ctx); err != nil {
		c.logger.Warn("trace flush failed", slog.Any("error", err))
	}
	return c.provider.Shutdown(ctx)
}

// forgetChild drops an ended child span from its parent's record.
func (c *Controller) forgetChild(parentTraceID string, id trace.SpanID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if parent, ok := c.active[parentTraceID]; ok {
		delete(parent.children, id)
	}
}

// attrsToKeyValues converts a flat attribute map to otel key-values.
// Unrecognized value types are stringified.
func attrsToKeyValues(attrs map[string]any) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch value := v.(type) {
		case string:
			kvs = append(kvs, attribute.String(k, value))
		case bool:
			kvs = append(kvs, attribute.Bool(k, value))
		case int:
			kvs = append(kvs, attribute.Int(k, value))
		case int64:
			kvs = append(kvs, attribute.Int64(k, value))
		case float64:
			kvs = append(kvs, attribute.Float64(k, value))
		case time.Duration:
			kvs = append(kvs, attribute.String(k, value.String()))
		default:
			kvs = append(kvs, attribute.String(k, fmt.Sprintf("%v", value)))
		}
	}
	return kvs
}
