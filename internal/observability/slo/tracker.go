// Package slo tracks service level objective budget consumption.
//
// Instead of computing compliance ratios in-process, the package exposes
// budget-consumption counters: every latency threshold breach and every
// error consumes one unit of budget. Burn-rate alerting over these counters
// happens in the external alerting system (see the alert rules artifact).
package slo

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default SLO parameters. These mirror the objectives agreed for catalog
// enrichment operations.
const (
	// DefaultTarget is the objective label stamped on budget counters
	DefaultTarget = "99.9%"

	// DefaultLatencyThreshold is the per-operation latency budget applied
	// when no explicit threshold is configured
	DefaultLatencyThreshold = 2 * time.Second
)

// StatusError is the operation status value that consumes error budget.
const StatusError = "error"

// Tracker records SLO budget consumption for traced operations.
type Tracker struct {
	mu               sync.RWMutex
	defaultThreshold time.Duration
	thresholds       map[string]time.Duration
	target           string

	latencyBudgetConsumed *prometheus.CounterVec
	errorBudgetConsumed   *prometheus.CounterVec
}

// NewTracker creates a Tracker registering its counters with reg.
// A zero defaultThreshold falls back to DefaultLatencyThreshold; an empty
// target falls back to DefaultTarget.
func NewTracker(reg prometheus.Registerer, defaultThreshold time.Duration, thresholds map[string]time.Duration, target string) *Tracker {
	if defaultThreshold <= 0 {
		defaultThreshold = DefaultLatencyThreshold
	}
	if target == "" {
		target = DefaultTarget
	}

	copied := make(map[string]time.Duration, len(thresholds))
	for op, threshold := range thresholds {
		copied[op] = threshold
	}

	factory := promauto.With(reg)
	return &Tracker{
		defaultThreshold: defaultThreshold,
		thresholds:       copied,
		target:           target,
		latencyBudgetConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slo_latency_budget_consumed_total",
				Help: "Operations that exceeded their latency SLO threshold",
			},
			[]string{"operation", "slo_target"},
		),
		errorBudgetConsumed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slo_error_budget_consumed_total",
				Help: "Operations that consumed error budget",
			},
			[]string{"operation", "slo_target"},
		),
	}
}

// Check evaluates one completed operation against its SLO. A duration above
// the operation's latency threshold consumes latency budget; an error status
// consumes error budget. Unknown operations use the default threshold, so
// this never fails.
func (t *Tracker) Check(operation string, duration time.Duration, status string) {
	if duration > t.ThresholdFor(operation) {
		t.latencyBudgetConsumed.WithLabelValues(operation, t.target).Inc()
	}
	if status == StatusError {
		t.errorBudgetConsumed.WithLabelValues(operation, t.target).Inc()
	}
}

// ThresholdFor returns the latency threshold for an operation, falling back
// to the default for unknown operation names.
func (t *Tracker) ThresholdFor(operation string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if threshold, ok := t.thresholds[operation]; ok {
		return threshold
	}
	return t.defaultThreshold
}

// SetThreshold overrides the latency threshold for an operation at runtime.
func (t *Tracker) SetThreshold(operation string, threshold time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.thresholds[operation] = threshold
}

// Target returns the objective label stamped on budget counters.
func (t *Tracker) Target() string {
	return t.target
}
