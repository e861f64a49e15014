package metrics

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"catalog-pulse/internal/observability/slo"
)

// UnknownMerchant is the merchant label applied when a caller omits the
// merchant id. Recording never fails on missing labels.
const UnknownMerchant = "unknown"

// Operation status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Options configures a Registry.
type Options struct {
	// Environment is stamped on every labeled instrument
	Environment string

	// SLODefaultThreshold, SLOThresholds and SLOTarget configure budget tracking
	SLODefaultThreshold time.Duration
	SLOThresholds       map[string]time.Duration
	SLOTarget           string

	// ResourceInterval is the cadence of background resource sampling
	ResourceInterval time.Duration

	// Logger receives internal errors; they are never propagated to callers
	Logger *slog.Logger
}

// Registry owns the golden-signal instruments for catalog operations.
// It is constructed around an explicit Prometheus registry: nothing in this
// package touches the global default registerer.
type Registry struct {
	environment string
	logger      *slog.Logger
	prom        *prometheus.Registry
	slo         *slo.Tracker

	operationDuration *prometheus.HistogramVec
	operationsTotal   *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	rateLimitHits     *prometheus.CounterVec
	activeOperations  *prometheus.GaugeVec
	batchObjects      *prometheus.HistogramVec
	catalogVersion    *prometheus.GaugeVec

	schedulerLag   prometheus.Histogram
	heapAllocBytes prometheus.Gauge
	goroutines     prometheus.Gauge

	// aggregate totals for cheap health checks, maintained alongside the
	// Prometheus counters
	totalOperations atomic.Int64
	totalErrors     atomic.Int64

	// in-flight counts per operation/merchant pair, guarded so decrements
	// can clamp at zero instead of driving the gauge negative
	activeMu     sync.Mutex
	activeCounts map[activeKey]int

	sampler *resourceSampler
}

type activeKey struct {
	operation string
	merchant  string
}

// NewRegistry creates a Registry with all instruments registered on prom.
// A nil prom gets a fresh private registry.
func NewRegistry(opts Options, prom *prometheus.Registry) *Registry {
	if prom == nil {
		prom = prometheus.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ResourceInterval <= 0 {
		opts.ResourceInterval = 15 * time.Second
	}

	factory := promauto.With(prom)
	r := &Registry{
		environment: opts.Environment,
		logger:      opts.Logger,
		prom:        prom,
		slo:         slo.NewTracker(prom, opts.SLODefaultThreshold, opts.SLOThresholds, opts.SLOTarget),

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_operation_duration_seconds",
				Help:    "Catalog operation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"operation", "status", "environment", "merchant"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_operations_total",
				Help: "Total number of catalog operations",
			},
			[]string{"operation", "status", "environment", "merchant"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_operation_errors_total",
				Help: "Total number of catalog operation errors by classification",
			},
			[]string{"operation", "error_type", "error_code", "retryable"},
		),
		rateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_rate_limit_hits_total",
				Help: "Total number of catalog API rate limit responses",
			},
			[]string{"operation"},
		),
		activeOperations: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_active_operations",
				Help: "Number of catalog operations currently in flight",
			},
			[]string{"operation", "merchant"},
		),
		batchObjects: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_batch_objects",
				Help:    "Number of objects per batch operation",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"operation", "status"},
		),
		catalogVersion: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_api_version_info",
				Help: "Currently observed catalog API version (value is always 1)",
			},
			[]string{"version"},
		),

		schedulerLag: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "process_scheduler_lag_seconds",
				Help:    "Observed delay of a fixed-interval timer beyond its schedule",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		heapAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "process_heap_alloc_bytes",
				Help: "Bytes of allocated heap objects",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "process_goroutines",
				Help: "Number of live goroutines",
			},
		),

		activeCounts: make(map[activeKey]int),
	}

	r.sampler = newResourceSampler(r, opts.ResourceInterval)
	return r
}

// Gatherer exposes the underlying registry for the metrics endpoint.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// RecordOperation observes one completed operation: duration histogram plus
// request counter, labeled by operation, status, environment and merchant.
// A missing merchant defaults to "unknown"; this never fails.
func (r *Registry) RecordOperation(operation string, duration time.Duration, status string, merchant string) {
	if merchant == "" {
		merchant = UnknownMerchant
	}
	r.operationDuration.WithLabelValues(operation, status, r.environment, merchant).Observe(duration.Seconds())
	r.operationsTotal.WithLabelValues(operation, status, r.environment, merchant).Inc()
	r.totalOperations.Add(1)
}

// RecordError classifies err and increments the error counter with the
// classification dimensions. Rate-limit classifications additionally bump
// the dedicated rate-limit counter.
func (r *Registry) RecordError(operation string, err error) Classification {
	c := ClassifyError(err)
	r.errorsTotal.WithLabelValues(operation, c.Type, c.Code, boolLabel(c.Retryable)).Inc()
	r.totalErrors.Add(1)
	if c.IsRateLimit() {
		r.rateLimitHits.WithLabelValues(operation).Inc()
	}
	return c
}

// TrackActiveOperation adjusts the in-flight saturation gauge. Start and
// end calls must be paired; unmatched ends are clamped so the gauge never
// goes negative.
func (r *Registry) TrackActiveOperation(operation, merchant string, isStart bool) {
	if merchant == "" {
		merchant = UnknownMerchant
	}
	key := activeKey{operation: operation, merchant: merchant}

	r.activeMu.Lock()
	defer r.activeMu.Unlock()

	count := r.activeCounts[key]
	if isStart {
		count++
	} else if count > 0 {
		count--
	} else {
		r.logger.Warn("unmatched active-operation decrement",
			slog.String("operation", operation),
			slog.String("merchant", merchant))
		return
	}
	r.activeCounts[key] = count
	r.activeOperations.WithLabelValues(operation, merchant).Set(float64(count))
}

// ActiveCount returns the total number of in-flight operations.
func (r *Registry) ActiveCount() int {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	total := 0
	for _, count := range r.activeCounts {
		total += count
	}
	return total
}

// RecordBatchOperation observes the object count of one batch call, for
// spotting abnormally large or small batches.
func (r *Registry) RecordBatchOperation(operation string, objectCount int, status string) {
	r.batchObjects.WithLabelValues(operation, status).Observe(float64(objectCount))
}

// CheckSLOCompliance evaluates one completed operation against its SLO
// budget. Misconfiguration resolves to the default threshold; the caller's
// path is never interrupted.
func (r *Registry) CheckSLOCompliance(operation string, duration time.Duration, status string) {
	r.slo.Check(operation, duration, status)
}

// SLO exposes the budget tracker for threshold inspection and overrides.
func (r *Registry) SLO() *slo.Tracker {
	return r.slo
}

// SetCatalogVersion publishes the currently observed catalog API version as
// an info-style gauge. The previous version's series is dropped so exactly
// one version label is live at a time.
func (r *Registry) SetCatalogVersion(version string) {
	if version == "" {
		return
	}
	r.catalogVersion.Reset()
	r.catalogVersion.WithLabelValues(version).Set(1)
}

// Totals returns the aggregate counters used by health checks.
func (r *Registry) Totals() Totals {
	return Totals{
		Operations: r.totalOperations.Load(),
		Errors:     r.totalErrors.Load(),
		Active:     r.ActiveCount(),
	}
}

// Totals is the aggregate view consumed by health checks and dashboards.
type Totals struct {
	Operations int64 `json:"operations"`
	Errors     int64 `json:"errors"`
	Active     int   `json:"active"`
}

// StartResourceSampling launches the background resource sampling tasks.
func (r *Registry) StartResourceSampling() {
	r.sampler.start()
}

// StopResourceSampling stops background sampling. Idempotent.
func (r *Registry) StopResourceSampling() {
	r.sampler.stop()
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
