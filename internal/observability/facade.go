package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"catalog-pulse/internal/catalog"
	"catalog-pulse/internal/config"
	"catalog-pulse/internal/observability/drift"
	"catalog-pulse/internal/observability/logging"
	"catalog-pulse/internal/observability/metrics"
	"catalog-pulse/internal/observability/tracing"
)

// Health statuses in escalating order.
const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

// alertWindow is the lookback used by health checks and dashboards.
const alertWindow = 60 * time.Minute

// Facade is the single entry point callers use to instrument catalog work.
// It owns the trace controller, the metrics registry and the drift monitor,
// with an explicit Start/Shutdown lifecycle. Construct one per process and
// inject it; nothing in this package is a global.
type Facade struct {
	cfg     config.Observability
	logger  *slog.Logger
	tracer  *tracing.Controller
	metrics *metrics.Registry
	drift   *drift.Monitor

	shutdownOnce sync.Once
	shutdownErr  error
}

// Clients groups the catalog clients the facade consumes. Operations serves
// traced business calls and carries the full retry and breaker stack. Canary
// serves the drift monitor's probes and must not retry; probe latency is
// measured as seen. A nil Canary falls back to Operations.
type Clients struct {
	Operations catalog.Client
	Canary     catalog.Client
}

// New wires a Facade from configuration. The Prometheus registry may be nil
// for an isolated one; pass a shared registry when the process exposes a
// combined metrics endpoint.
func New(cfg config.Observability, clients Clients, prom *prometheus.Registry, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = logging.NewLogger()
	}

	probeClient := clients.Canary
	if probeClient == nil {
		probeClient = clients.Operations
	}

	registry := metrics.NewRegistry(metrics.Options{
		Environment:         cfg.Environment,
		SLODefaultThreshold: cfg.DefaultLatencySLO,
		SLOThresholds:       cfg.OperationLatencySLOs,
		SLOTarget:           cfg.SLOTarget,
		ResourceInterval:    cfg.ResourceSampleInterval,
		Logger:              logger,
	}, prom)

	tracer := tracing.NewController(tracing.Options{
		ServiceName:       cfg.ServiceName,
		Environment:       cfg.Environment,
		MerchantID:        cfg.MerchantID,
		DefaultSampleRate: cfg.DefaultSampleRate,
		OperationRates:    cfg.OperationSampleRates,
		SensitiveFields:   cfg.SensitiveFields,
		Logger:            logger,
		Classify: func(err error) (string, string, bool) {
			c := metrics.ClassifyError(err)
			return c.Type, c.Code, c.Retryable
		},
	})

	monitor := drift.NewMonitor(drift.Options{
		MerchantID:        cfg.MerchantID,
		Client:            probeClient,
		Metrics:           registry,
		Logger:            logger,
		PollInterval:      cfg.VersionPollInterval,
		CanaryInterval:    cfg.CanaryInterval,
		ProbeTimeout:      cfg.CanaryProbeTimeout,
		LatencyCeiling:    cfg.CanaryLatencyCeiling,
		CriticalThreshold: cfg.CriticalDriftThreshold,
		HistoryLimit:      cfg.VersionHistoryLimit,
		AlertLimit:        cfg.AlertHistoryLimit,
	})

	return &Facade{
		cfg:     cfg,
		logger:  logger,
		tracer:  tracer,
		metrics: registry,
		drift:   monitor,
	}
}

// Start launches background behavior: resource sampling and the drift
// monitor's cadences.
func (f *Facade) Start(ctx context.Context) error {
	f.metrics.StartResourceSampling()
	return f.drift.Initialize(ctx)
}

// TraceOperation wraps one unit of work: it starts a span, tracks the
// in-flight gauge, times the call, and routes the outcome to both the trace
// controller and the metrics registry. The wrapped call's error is returned
// unchanged; the facade never retries, blocks or mutates the business path.
func (f *Facade) TraceOperation(ctx context.Context, name string, attrs map[string]any, fn func(ctx context.Context) (*tracing.Result, error)) (*tracing.Result, error) {
	merchant := f.cfg.MerchantID
	if m, ok := attrs["merchant_id"].(string); ok && m != "" {
		merchant = m
	}

	f.metrics.TrackActiveOperation(name, merchant, true)
	defer f.metrics.TrackActiveOperation(name, merchant, false)

	op := f.tracer.StartOperation(ctx, name, attrs)
	start := time.Now()
	result, err := fn(op.Context)
	duration := time.Since(start)

	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}

	op.End(result, err, nil)

	f.metrics.RecordOperation(name, duration, status, merchant)
	f.metrics.CheckSLOCompliance(name, duration, status)
	if err != nil {
		f.metrics.RecordError(name, err)
	} else if result != nil && result.ObjectCount > 0 {
		f.metrics.RecordBatchOperation(name, result.ObjectCount, status)
	}

	return result, err
}

// Log emits one structured line, injecting trace and span identifiers when
// ctx carries an active span and scrubbing fields through the same rules
// applied to span attributes.
func (f *Facade) Log(ctx context.Context, level slog.Level, msg string, fields map[string]any) {
	logger := logging.WithTraceContext(ctx, f.logger)
	scrubbed, _ := f.tracer.ScrubSensitiveData(fields).(map[string]any)
	logger.With(
		slog.String("environment", f.cfg.Environment),
		slog.String("merchant_id", f.cfg.MerchantID),
	).Log(ctx, level, msg, argsFromFields(scrubbed)...)
}

// Tracer exposes the trace controller for direct span control
// (StartOperation, AddChildSpan, ForceSample).
func (f *Facade) Tracer() *tracing.Controller {
	return f.tracer
}

// Metrics exposes the metrics registry for direct instrumentation.
func (f *Facade) Metrics() *metrics.Registry {
	return f.metrics
}

// Drift exposes the drift monitor for operator hooks
// (ExpectVersionChange, ResetUnexpectedCount).
func (f *Facade) Drift() *drift.Monitor {
	return f.drift
}

// Dashboard is the aggregated snapshot served to external health surfaces.
type Dashboard struct {
	GeneratedAt      time.Time                   `json:"generated_at"`
	Status           string                      `json:"status"`
	ActiveOperations []tracing.ActiveSummary     `json:"active_operations"`
	Totals           metrics.Totals              `json:"totals"`
	Sampling         tracing.Stats               `json:"sampling"`
	CatalogVersion   string                      `json:"catalog_version"`
	DriftState       drift.State                 `json:"drift_state"`
	UnexpectedDrift  int64                       `json:"unexpected_version_changes"`
	RecentAlerts     []drift.Alert               `json:"recent_alerts"`
	VersionHistory   []drift.VersionChangeRecord `json:"version_history"`
}

// GetDashboard aggregates active traces, metric totals, recent alerts and
// version history into one snapshot.
func (f *Facade) GetDashboard() Dashboard {
	health := f.HealthCheck()
	return Dashboard{
		GeneratedAt:      time.Now().UTC(),
		Status:           health.Status,
		ActiveOperations: f.tracer.ActiveOperations(),
		Totals:           f.metrics.Totals(),
		Sampling:         f.tracer.SamplingStats(),
		CatalogVersion:   f.drift.CurrentVersion(),
		DriftState:       f.drift.State(),
		UnexpectedDrift:  f.drift.UnexpectedChangeCount(),
		RecentAlerts:     f.drift.RecentAlerts(alertWindow),
		VersionHistory:   f.drift.VersionHistory(),
	}
}

// Health is the derived overall status with component detail.
type Health struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// HealthCheck derives the overall status from component sub-statuses:
// critical when a recent critical alert exists, warning once the
// recent-alert count crosses the configured threshold or drift monitoring
// is stopped, healthy otherwise.
func (f *Facade) HealthCheck() Health {
	components := map[string]string{
		"tracing": StatusHealthy,
		"metrics": StatusHealthy,
		"drift":   StatusHealthy,
	}

	recent := f.drift.RecentAlerts(alertWindow)
	for _, alert := range recent {
		if alert.Severity == drift.SeverityCritical {
			components["drift"] = StatusCritical
			break
		}
	}
	if components["drift"] == StatusHealthy {
		if len(recent) > f.cfg.AlertWarnThreshold {
			components["drift"] = StatusWarning
		} else if f.drift.State() == drift.StateStopped {
			components["drift"] = StatusWarning
		}
	}

	overall := StatusHealthy
	for _, status := range components {
		if rank(status) > rank(overall) {
			overall = status
		}
	}
	return Health{Status: overall, Components: components}
}

// Shutdown stops background work, marks any still-open spans as aborted,
// and flushes the tracer. Idempotent: a second call returns the first
// call's result without re-cancelling anything.
func (f *Facade) Shutdown(ctx context.Context) error {
	f.shutdownOnce.Do(func() {
		f.drift.Stop()
		if aborted := f.tracer.AbortOpenSpans(); aborted > 0 {
			f.logger.Warn("aborted open spans at shutdown", slog.Int("count", aborted))
		}
		f.metrics.StopResourceSampling()
		f.shutdownErr = f.tracer.Shutdown(ctx)
	})
	return f.shutdownErr
}

func rank(status string) int {
	switch status {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

func argsFromFields(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
