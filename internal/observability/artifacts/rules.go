// Package artifacts builds the static configuration documents handed to
// the external alerting and visualization systems: threshold rules with
// runbook text, and a dashboard layout. Both are emitted as YAML.
package artifacts

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// AlertRule is one threshold expression for the external alerting system.
type AlertRule struct {
	Name        string            `yaml:"name"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for,omitempty"`
	Severity    string            `yaml:"severity"`
	Summary     string            `yaml:"summary"`
	Runbook     string            `yaml:"runbook"`
	Labels      map[string]string `yaml:"labels,omitempty"`
}

// RuleGroup bundles rules the way the alerting system ingests them.
type RuleGroup struct {
	Name  string      `yaml:"name"`
	Rules []AlertRule `yaml:"rules"`
}

// RulesDocument is the top-level alerting-rules artifact.
type RulesDocument struct {
	Groups []RuleGroup `yaml:"groups"`
}

// DefaultAlertRules returns the alerting rules for the catalog
// observability core.
func DefaultAlertRules() RulesDocument {
	return RulesDocument{
		Groups: []RuleGroup{
			{
				Name: "catalog-golden-signals",
				Rules: []AlertRule{
					{
						Name:     "CatalogHighErrorRate",
						Expr:     `sum(rate(catalog_operation_errors_total[5m])) / sum(rate(catalog_operations_total[5m])) > 0.05`,
						For:      "10m",
						Severity: "warning",
						Summary:  "Catalog operation error rate above 5%",
						Runbook: "Check catalog_operation_errors_total by error_code. Rate-limit errors mean " +
							"enrichment concurrency is too high; transport errors mean the catalog API or the " +
							"network path is degraded.",
					},
					{
						Name:     "CatalogLatencyBudgetBurn",
						Expr:     `sum(rate(slo_latency_budget_consumed_total[30m])) > 0.1`,
						For:      "30m",
						Severity: "warning",
						Summary:  "Latency SLO budget burning faster than sustainable",
						Runbook: "Inspect catalog_operation_duration_seconds by operation to find the slow " +
							"operation, then compare with canary probe latency to separate our load from " +
							"provider-side slowdown.",
					},
					{
						Name:     "CatalogErrorBudgetBurn",
						Expr:     `sum(rate(slo_error_budget_consumed_total[1h])) > 0.05`,
						For:      "1h",
						Severity: "critical",
						Summary:  "Error SLO budget burn endangers the monthly objective",
						Runbook: "Page the on-call. Halt bulk enrichment runs until the error source is " +
							"identified; the budget does not recover within the objective window.",
					},
					{
						Name:     "CatalogSaturationHigh",
						Expr:     `sum(catalog_active_operations) > 50`,
						For:      "15m",
						Severity: "warning",
						Summary:  "Sustained high in-flight catalog operation count",
						Runbook: "The enrichment pipeline is outrunning the catalog API. Reduce worker " +
							"concurrency before the provider starts rate limiting.",
					},
				},
			},
			{
				Name: "catalog-drift",
				Rules: []AlertRule{
					{
						Name:     "CatalogUnexpectedVersionChange",
						Expr:     `catalog_api_version_info unless catalog_api_version_info offset 1h`,
						Severity: "critical",
						Summary:  "Catalog API reports a version not seen an hour ago",
						Runbook: "Verify against the provider changelog. If announced, acknowledge via the " +
							"expect-version-change operator hook; if not, review canary anomalies for " +
							"behavioral drift before resuming enrichment runs.",
					},
					{
						Name:     "CatalogCanaryFailing",
						Expr:     `sum(rate(catalog_operation_errors_total{operation=~"canary.*"}[30m])) > 0`,
						For:      "30m",
						Severity: "critical",
						Summary:  "Canary probes against the catalog API are failing",
						Runbook: "Probes are read-only and minimal; failures almost always mean provider " +
							"outage or credential expiry. Check probe error codes before anything else.",
					},
				},
			},
			{
				Name: "process-resources",
				Rules: []AlertRule{
					{
						Name:     "SchedulerLagHigh",
						Expr:     `histogram_quantile(0.99, rate(process_scheduler_lag_seconds_bucket[10m])) > 0.5`,
						For:      "10m",
						Severity: "warning",
						Summary:  "Scheduler lag p99 above 500ms",
						Runbook: "The process is CPU or GC bound. Check process_heap_alloc_bytes for a leak " +
							"and recent deploys for a tight loop.",
					},
				},
			},
		},
	}
}

// RenderRules serializes a rules document to YAML.
func RenderRules(doc RulesDocument) ([]byte, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal alert rules: %w", err)
	}
	return out, nil
}
