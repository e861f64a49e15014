// Package config loads application-level configuration from the environment.
package config

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	pkgconfig "catalog-pulse/internal/pkg/config"
)

// Default values for the observability configuration. Every value can be
// overridden from the environment; invalid overrides fall back here.
const (
	DefaultServiceName          = "catalog-pulse"
	DefaultEnvironment          = "production"
	DefaultSampleRate           = 0.1
	DefaultLatencySLO           = 2 * time.Second
	DefaultSLOTarget            = "99.9%"
	DefaultVersionPollInterval  = 5 * time.Minute
	DefaultCanaryInterval       = 15 * time.Minute
	DefaultCanaryProbeTimeout   = 10 * time.Second
	DefaultCanaryLatencyCeiling = 5 * time.Second
	DefaultResourceInterval     = 15 * time.Second
	DefaultCriticalDrift        = 3
	DefaultVersionHistoryLimit  = 50
	DefaultAlertHistoryLimit    = 200
	DefaultAlertWarnThreshold   = 5
	DefaultMetricsPort          = 9090
)

// DefaultSensitiveFields are the attribute and log field names that are
// redacted before leaving the process. Matching is case-insensitive and
// includes substring containment.
var DefaultSensitiveFields = []string{
	"access_token",
	"authorization",
	"api_key",
	"secret",
	"password",
	"credential",
}

// Observability holds the full configuration of the observability core.
type Observability struct {
	// ServiceName identifies this process in traces and metrics
	ServiceName string

	// Environment is the deployment environment label (production, sandbox)
	Environment string

	// MerchantID is the default merchant context bound to spans and metrics
	MerchantID string

	// DefaultSampleRate is the trace sampling rate for operations without
	// an explicit per-operation rate (0.0 to 1.0)
	DefaultSampleRate float64

	// OperationSampleRates maps operation names to sampling rates,
	// parsed from "op=rate,op=rate" form
	OperationSampleRates map[string]float64

	// SensitiveFields are field names redacted from spans and logs
	SensitiveFields []string

	// DefaultLatencySLO is the latency budget threshold applied to
	// operations without an explicit per-operation threshold
	DefaultLatencySLO time.Duration

	// OperationLatencySLOs maps operation names to latency thresholds,
	// parsed from "op=duration,op=duration" form
	OperationLatencySLOs map[string]time.Duration

	// SLOTarget is the objective label stamped on budget counters
	SLOTarget string

	// VersionPollInterval is the cadence of catalog version drift checks
	VersionPollInterval time.Duration

	// CanaryInterval is the cadence of the canary probe battery
	CanaryInterval time.Duration

	// CanaryProbeTimeout bounds each individual canary probe
	CanaryProbeTimeout time.Duration

	// CanaryLatencyCeiling is the probe duration above which a
	// high-latency anomaly is raised
	CanaryLatencyCeiling time.Duration

	// ResourceSampleInterval is the cadence of background resource sampling
	ResourceSampleInterval time.Duration

	// CriticalDriftThreshold is the unexpected-change count at which
	// drift alerts escalate to critical severity
	CriticalDriftThreshold int

	// VersionHistoryLimit bounds the retained version change records
	VersionHistoryLimit int

	// AlertHistoryLimit bounds the in-memory alert log
	AlertHistoryLimit int

	// AlertWarnThreshold is the recent-alert count that degrades the
	// overall health status to warning
	AlertWarnThreshold int

	// MetricsPort is the port of the metrics and health HTTP server
	MetricsPort int
}

// Load reads the observability configuration from the environment.
// Invalid values fall back to defaults; every fallback is logged as a
// warning so a misconfigured deployment is visible but never fatal.
func Load(logger *slog.Logger) Observability {
	cfg := Observability{
		ServiceName: pkgconfig.LoadEnvString("SERVICE_NAME", DefaultServiceName),
		Environment: pkgconfig.LoadEnvString("ENVIRONMENT", DefaultEnvironment),
		MerchantID:  pkgconfig.LoadEnvString("MERCHANT_ID", ""),
		SLOTarget:   pkgconfig.LoadEnvString("SLO_TARGET", DefaultSLOTarget),
	}

	cfg.DefaultSampleRate = loadFloat(logger, "TRACE_SAMPLE_RATE", DefaultSampleRate, pkgconfig.ValidateRatio)
	cfg.OperationSampleRates = parseRateList(logger, "OPERATION_SAMPLE_RATES")
	cfg.SensitiveFields = parseFieldList("SENSITIVE_FIELDS", DefaultSensitiveFields)

	cfg.DefaultLatencySLO = loadDuration(logger, "SLO_LATENCY_THRESHOLD", DefaultLatencySLO)
	cfg.OperationLatencySLOs = parseDurationList(logger, "OPERATION_LATENCY_SLOS")

	cfg.VersionPollInterval = loadDuration(logger, "VERSION_POLL_INTERVAL", DefaultVersionPollInterval)
	cfg.CanaryInterval = loadDuration(logger, "CANARY_INTERVAL", DefaultCanaryInterval)
	cfg.CanaryProbeTimeout = loadDuration(logger, "CANARY_PROBE_TIMEOUT", DefaultCanaryProbeTimeout)
	cfg.CanaryLatencyCeiling = loadDuration(logger, "CANARY_LATENCY_CEILING", DefaultCanaryLatencyCeiling)
	cfg.ResourceSampleInterval = loadDuration(logger, "RESOURCE_SAMPLE_INTERVAL", DefaultResourceInterval)

	cfg.CriticalDriftThreshold = loadInt(logger, "CRITICAL_DRIFT_THRESHOLD", DefaultCriticalDrift, 1, 1000)
	cfg.VersionHistoryLimit = loadInt(logger, "VERSION_HISTORY_LIMIT", DefaultVersionHistoryLimit, 1, 10000)
	cfg.AlertHistoryLimit = loadInt(logger, "ALERT_HISTORY_LIMIT", DefaultAlertHistoryLimit, 1, 10000)
	cfg.AlertWarnThreshold = loadInt(logger, "ALERT_WARN_THRESHOLD", DefaultAlertWarnThreshold, 1, 1000)
	cfg.MetricsPort = loadInt(logger, "METRICS_PORT", DefaultMetricsPort, 1, 65535)

	return cfg
}

// SampleRateFor returns the sampling rate for an operation, falling back to
// the default rate for unknown operations.
func (c Observability) SampleRateFor(operation string) float64 {
	if rate, ok := c.OperationSampleRates[operation]; ok {
		return rate
	}
	return c.DefaultSampleRate
}

// LatencySLOFor returns the latency budget threshold for an operation,
// falling back to the default threshold for unknown operations.
func (c Observability) LatencySLOFor(operation string) time.Duration {
	if threshold, ok := c.OperationLatencySLOs[operation]; ok {
		return threshold
	}
	return c.DefaultLatencySLO
}

func loadFloat(logger *slog.Logger, key string, def float64, validator func(float64) error) float64 {
	result := pkgconfig.LoadEnvFloat(key, def, validator)
	logWarnings(logger, result)
	return result.Value.(float64)
}

func loadDuration(logger *slog.Logger, key string, def time.Duration) time.Duration {
	result := pkgconfig.LoadEnvDuration(key, def, pkgconfig.ValidatePositiveDuration)
	logWarnings(logger, result)
	return result.Value.(time.Duration)
}

func loadInt(logger *slog.Logger, key string, def, min, max int) int {
	result := pkgconfig.LoadEnvInt(key, def, func(v int) error {
		return pkgconfig.ValidateIntRange(v, min, max)
	})
	logWarnings(logger, result)
	return result.Value.(int)
}

func logWarnings(logger *slog.Logger, result pkgconfig.ConfigLoadResult) {
	if logger == nil {
		return
	}
	for _, warning := range result.Warnings {
		logger.Warn("configuration fallback", slog.String("warning", warning))
	}
}

// parseRateList parses "op=rate,op=rate" into a map. Malformed entries are
// skipped with a warning; the whole list is optional.
func parseRateList(logger *slog.Logger, key string) map[string]float64 {
	raw := pkgconfig.LoadEnvString(key, "")
	if raw == "" {
		return map[string]float64{}
	}

	rates := make(map[string]float64)
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			warnEntry(logger, key, entry)
			continue
		}
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil || rate < 0 || rate > 1 {
			warnEntry(logger, key, entry)
			continue
		}
		rates[name] = rate
	}
	return rates
}

// parseDurationList parses "op=duration,op=duration" into a map.
func parseDurationList(logger *slog.Logger, key string) map[string]time.Duration {
	raw := pkgconfig.LoadEnvString(key, "")
	if raw == "" {
		return map[string]time.Duration{}
	}

	thresholds := make(map[string]time.Duration)
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			warnEntry(logger, key, entry)
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			warnEntry(logger, key, entry)
			continue
		}
		thresholds[name] = d
	}
	return thresholds
}

// parseFieldList parses a comma-separated field list, falling back to the
// provided defaults when the variable is unset.
func parseFieldList(key string, defaults []string) []string {
	raw := pkgconfig.LoadEnvString(key, "")
	if raw == "" {
		return append([]string(nil), defaults...)
	}

	var fields []string
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field != "" {
			fields = append(fields, field)
		}
	}
	return fields
}

func warnEntry(logger *slog.Logger, key, entry string) {
	if logger == nil {
		return
	}
	logger.Warn("skipping malformed configuration entry",
		slog.String("variable", key),
		slog.String("entry", entry))
}
