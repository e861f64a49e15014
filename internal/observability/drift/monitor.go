package drift

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"catalog-pulse/internal/catalog"
	"catalog-pulse/internal/observability/metrics"
	"catalog-pulse/internal/pkg/clock"
)

// State is the lifecycle state of a Monitor.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateMonitoring   State = "MONITORING"
	StateStopped      State = "STOPPED"
)

// VersionChangeRecord is one observed catalog API version transition.
// Records are append-only and never mutated.
type VersionChangeRecord struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Expected  bool      `json:"expected"`
	Source    string    `json:"source"`
}

// Version update sources recorded on change records.
const (
	SourcePoll   = "poll"
	SourceManual = "manual"
)

// expectedWindow is one operator-announced upcoming version change.
// Windows are one-shot: consumed on first match, purged on expiry.
type expectedWindow struct {
	version   string
	expiresAt time.Time
}

// Options configures a Monitor.
type Options struct {
	// MerchantID scopes the monitor; it appears in alerts and logs
	MerchantID string

	// Client is the wrapped catalog client the monitor probes
	Client catalog.Client

	// Metrics optionally receives version updates and probe outcomes
	Metrics *metrics.Registry

	// Logger receives tick failures; they never halt subsequent ticks
	Logger *slog.Logger

	// Clock drives expiry decisions; nil uses the system clock
	Clock clock.Clock

	// PollInterval and CanaryInterval are the two independent cadences
	PollInterval   time.Duration
	CanaryInterval time.Duration

	// ProbeTimeout bounds each canary probe and version fetch
	ProbeTimeout time.Duration

	// LatencyCeiling is the probe duration that raises a high_latency anomaly
	LatencyCeiling time.Duration

	// CriticalThreshold is the unexpected-change count at which version
	// drift alerts escalate to critical
	CriticalThreshold int

	// HistoryLimit bounds the version change history
	HistoryLimit int

	// AlertLimit bounds the in-memory alert log
	AlertLimit int
}

// Monitor polls the catalog API version and runs the canary battery on
// independent cadences. All methods are safe for concurrent use.
type Monitor struct {
	merchantID     string
	client         catalog.Client
	metrics        *metrics.Registry
	logger         *slog.Logger
	clock          clock.Clock
	pollInterval   time.Duration
	canaryInterval time.Duration
	probeTimeout   time.Duration
	latencyCeiling time.Duration
	criticalAfter  int
	historyLimit   int

	alerts *alertLog

	mu             sync.Mutex
	state          State
	currentVersion string
	history        []VersionChangeRecord
	expected       []expectedWindow
	scheduler      *cron.Cron

	unexpectedCount atomic.Int64
}

// NewMonitor creates a Monitor in the INITIALIZING state.
func NewMonitor(opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = &clock.SystemClock{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Minute
	}
	if opts.CanaryInterval <= 0 {
		opts.CanaryInterval = 15 * time.Minute
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 10 * time.Second
	}
	if opts.LatencyCeiling <= 0 {
		opts.LatencyCeiling = 5 * time.Second
	}
	if opts.CriticalThreshold <= 0 {
		opts.CriticalThreshold = 3
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}

	return &Monitor{
		merchantID:     opts.MerchantID,
		client:         opts.Client,
		metrics:        opts.Metrics,
		logger:         opts.Logger.With(slog.String("component", "drift_monitor"), slog.String("merchant_id", opts.MerchantID)),
		clock:          opts.Clock,
		pollInterval:   opts.PollInterval,
		canaryInterval: opts.CanaryInterval,
		probeTimeout:   opts.ProbeTimeout,
		latencyCeiling: opts.LatencyCeiling,
		criticalAfter:  opts.CriticalThreshold,
		historyLimit:   opts.HistoryLimit,
		alerts:         newAlertLog(opts.AlertLimit, opts.Clock),
		state:          StateInitializing,
	}
}

// State returns the monitor's lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize fetches the baseline version and starts the version-poll and
// canary cadences. A failed baseline fetch is logged, not fatal: the first
// successful poll establishes the baseline instead.
func (m *Monitor) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateInitializing {
		m.mu.Unlock()
		return fmt.Errorf("monitor already %s", m.state)
	}
	m.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	version, err := m.client.APIVersion(fetchCtx)
	cancel()
	if err != nil {
		m.logger.Warn("baseline version fetch failed", slog.Any("error", err))
	} else {
		m.mu.Lock()
		m.currentVersion = version
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.SetCatalogVersion(version)
		}
		m.logger.Info("baseline catalog version established", slog.String("version", version))
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", m.pollInterval), m.pollTick); err != nil {
		return fmt.Errorf("schedule version poll: %w", err)
	}
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", m.canaryInterval), m.canaryTick); err != nil {
		return fmt.Errorf("schedule canary battery: %w", err)
	}
	scheduler.Start()

	m.mu.Lock()
	m.scheduler = scheduler
	m.state = StateMonitoring
	m.mu.Unlock()

	m.logger.Info("drift monitoring started",
		slog.Duration("poll_interval", m.pollInterval),
		slog.Duration("canary_interval", m.canaryInterval))
	return nil
}

// Stop cancels both cadences. Idempotent: stopping a stopped monitor is a
// no-op, and no timer is cancelled twice.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	scheduler := m.scheduler
	m.scheduler = nil
	m.state = StateStopped
	m.mu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	m.logger.Info("drift monitoring stopped")
}

// pollTick is the scheduled version-drift check. Failures are logged and
// never halt subsequent ticks.
func (m *Monitor) pollTick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
	defer cancel()
	if err := m.CheckVersionDrift(ctx); err != nil {
		m.logger.Warn("version drift check failed", slog.Any("error", err))
	}
}

// canaryTick is the scheduled canary battery run.
func (m *Monitor) canaryTick() {
	// the battery applies per-probe timeouts; the outer bound only stops a
	// wedged tick from overlapping the next one
	ctx, cancel := context.WithTimeout(context.Background(), m.canaryInterval)
	defer cancel()
	m.RunCanary(ctx)
}

// UpdateCurrentVersion fetches the current catalog version and records a
// change record when it differs from the last known value. The returned
// record is nil when nothing changed. With consume true, a matching
// expected-change window is spent by this call.
func (m *Monitor) UpdateCurrentVersion(ctx context.Context, consume bool) (*VersionChangeRecord, error) {
	return m.updateVersion(ctx, SourceManual, consume)
}

func (m *Monitor) updateVersion(ctx context.Context, source string, consume bool) (*VersionChangeRecord, error) {
	version, err := m.client.APIVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog version: %w", err)
	}

	m.mu.Lock()
	previous := m.currentVersion
	if version == previous || version == "" {
		m.mu.Unlock()
		return nil, nil
	}

	// first observation with no baseline is an establishment, not a change
	if previous == "" {
		m.currentVersion = version
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.SetCatalogVersion(version)
		}
		return nil, nil
	}

	record := VersionChangeRecord{
		From:      previous,
		To:        version,
		Timestamp: m.clock.Now(),
		Expected:  m.isExpectedChangeLocked(version, consume),
		Source:    source,
	}
	m.currentVersion = version
	m.history = append(m.history, record)
	if len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetCatalogVersion(version)
	}

	m.logger.Info("catalog version changed",
		slog.String("from", record.From),
		slog.String("to", record.To),
		slog.Bool("expected", record.Expected),
		slog.String("source", record.Source))

	return &record, nil
}

// CheckVersionDrift is one version-poll tick: it refreshes the current
// version and, on an unexpected transition, increments the unexpected-change
// counter and raises a version-drift alert. Severity escalates to critical
// once the counter reaches the configured threshold.
func (m *Monitor) CheckVersionDrift(ctx context.Context) error {
	record, err := m.updateVersion(ctx, SourcePoll, true)
	if err != nil {
		return err
	}
	if record == nil || record.Expected {
		return nil
	}

	count := m.unexpectedCount.Add(1)
	severity := SeverityWarning
	if count >= int64(m.criticalAfter) {
		severity = SeverityCritical
	}

	m.raiseAlert(Alert{
		Type:     AlertTypeVersionDrift,
		Severity: severity,
		Message:  fmt.Sprintf("unexpected catalog API version change %s -> %s", record.From, record.To),
		Details: map[string]any{
			"from":             record.From,
			"to":               record.To,
			"merchant_id":      m.merchantID,
			"unexpected_count": count,
		},
		Runbook: "Verify the catalog provider's changelog. If the change is legitimate, " +
			"acknowledge it with ExpectVersionChange and reset the unexpected-change counter. " +
			"Otherwise review canary results for behavioral drift before resuming enrichment runs.",
	})
	return nil
}

// IsExpectedChange reports whether version falls inside a non-expired
// expected-change window. With consume true (the default call path) the
// matching window is spent: a second check for the same version returns
// false. Expired windows are purged as a side effect regardless of match.
func (m *Monitor) IsExpectedChange(version string, consume bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isExpectedChangeLocked(version, consume)
}

// isExpectedChangeLocked requires m.mu held.
func (m *Monitor) isExpectedChangeLocked(version string, consume bool) bool {
	now := m.clock.Now()

	live := m.expected[:0]
	matched := false
	for _, window := range m.expected {
		if !window.expiresAt.After(now) {
			continue // expired, purge
		}
		if !matched && window.version == version {
			matched = true
			if consume {
				continue // spent, drop from the set
			}
		}
		live = append(live, window)
	}
	m.expected = live
	return matched
}

// ExpectVersionChange announces a deliberate upcoming version change so the
// transition is not flagged as drift. The window is one-shot and expires
// after the given duration.
func (m *Monitor) ExpectVersionChange(version string, within time.Duration) {
	if version == "" || within <= 0 {
		return
	}
	window := expectedWindow{version: version, expiresAt: m.clock.Now().Add(within)}

	m.mu.Lock()
	m.expected = append(m.expected, window)
	m.mu.Unlock()

	m.logger.Info("version change window registered",
		slog.String("version", version),
		slog.Time("expires_at", window.expiresAt))
}

// UnexpectedChangeCount returns the monotonic unexpected-change counter.
func (m *Monitor) UnexpectedChangeCount() int64 {
	return m.unexpectedCount.Load()
}

// ResetUnexpectedCount is the explicit operator reset of the
// unexpected-change counter, used after acknowledging a drift incident.
func (m *Monitor) ResetUnexpectedCount() {
	m.unexpectedCount.Store(0)
	m.logger.Info("unexpected version change counter reset")
}

// CurrentVersion returns the last known catalog API version.
func (m *Monitor) CurrentVersion() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentVersion
}

// VersionHistory returns a copy of the recorded version transitions,
// oldest first.
func (m *Monitor) VersionHistory() []VersionChangeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]VersionChangeRecord(nil), m.history...)
}

// RecentAlerts returns alerts raised within the given window, oldest first.
func (m *Monitor) RecentAlerts(window time.Duration) []Alert {
	return m.alerts.recent(window)
}

// DroppedAlerts returns how many alerts the flood limiter rejected.
func (m *Monitor) DroppedAlerts() int64 {
	return m.alerts.droppedCount()
}

func (m *Monitor) raiseAlert(alert Alert) {
	stored, ok := m.alerts.append(alert)
	if !ok {
		m.logger.Warn("alert dropped by flood limiter", slog.String("type", alert.Type))
		return
	}
	m.logger.Warn("alert raised",
		slog.String("alert_id", stored.ID),
		slog.String("type", stored.Type),
		slog.String("severity", stored.Severity),
		slog.String("message", stored.Message))
}
