package drift

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"catalog-pulse/internal/pkg/clock"
)

// Alert types raised by the monitor.
const (
	AlertTypeVersionDrift = "version_drift"
	AlertTypeCanary       = "canary_anomaly"
)

// Alert severities, in escalating order.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is one observational finding. Alerts are append-only: once raised
// they are never mutated, only aged out of the bounded log.
type Alert struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Runbook   string         `json:"runbook,omitempty"`
}

// alertLog is the bounded, rate-limited in-memory alert store.
//
// The rate limiter protects the log (and whatever ships it downstream) from
// alert storms: a flapping canary can only append a burst before further
// alerts are counted as dropped rather than stored.
type alertLog struct {
	mu      sync.Mutex
	limit   int
	clock   clock.Clock
	limiter *rate.Limiter
	entries []Alert
	dropped int64
}

func newAlertLog(limit int, clk clock.Clock) *alertLog {
	if limit <= 0 {
		limit = 200
	}
	if clk == nil {
		clk = &clock.SystemClock{}
	}
	return &alertLog{
		limit: limit,
		clock: clk,
		// sustained one alert per second with room for a burst per tick
		limiter: rate.NewLimiter(rate.Every(time.Second), 25),
	}
}

// append stores an alert, assigning id and timestamp. Returns false when
// the rate limiter rejected it.
func (l *alertLog) append(alert Alert) (Alert, bool) {
	if !l.limiter.Allow() {
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
		return Alert{}, false
	}

	alert.ID = uuid.NewString()
	alert.Timestamp = l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, alert)
	if len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
	return alert, true
}

// recent returns the alerts newer than the given window, oldest first.
func (l *alertLog) recent(window time.Duration) []Alert {
	cutoff := l.clock.Now().Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Alert
	for _, alert := range l.entries {
		if alert.Timestamp.After(cutoff) {
			out = append(out, alert)
		}
	}
	return out
}

// droppedCount returns how many alerts the rate limiter rejected.
func (l *alertLog) droppedCount() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
