package artifacts

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Panel is one chart or stat on the dashboard.
type Panel struct {
	Title   string   `yaml:"title"`
	Type    string   `yaml:"type"`
	Queries []string `yaml:"queries"`
	Unit    string   `yaml:"unit,omitempty"`
}

// Row groups panels under a heading.
type Row struct {
	Title  string  `yaml:"title"`
	Panels []Panel `yaml:"panels"`
}

// DashboardDocument is the dashboard layout artifact.
type DashboardDocument struct {
	Title   string `yaml:"title"`
	Refresh string `yaml:"refresh"`
	Rows    []Row  `yaml:"rows"`
}

// DefaultDashboard returns the catalog observability dashboard layout:
// golden signals on top, SLO budgets next, drift and process health below.
func DefaultDashboard() DashboardDocument {
	return DashboardDocument{
		Title:   "Catalog Observability",
		Refresh: "30s",
		Rows: []Row{
			{
				Title: "Golden Signals",
				Panels: []Panel{
					{
						Title:   "Operation rate",
						Type:    "timeseries",
						Queries: []string{`sum(rate(catalog_operations_total[5m])) by (operation)`},
						Unit:    "ops/s",
					},
					{
						Title: "Latency p50 / p95 / p99",
						Type:  "timeseries",
						Queries: []string{
							`histogram_quantile(0.50, sum(rate(catalog_operation_duration_seconds_bucket[5m])) by (le, operation))`,
							`histogram_quantile(0.95, sum(rate(catalog_operation_duration_seconds_bucket[5m])) by (le, operation))`,
							`histogram_quantile(0.99, sum(rate(catalog_operation_duration_seconds_bucket[5m])) by (le, operation))`,
						},
						Unit: "s",
					},
					{
						Title:   "Error rate by code",
						Type:    "timeseries",
						Queries: []string{`sum(rate(catalog_operation_errors_total[5m])) by (error_type, error_code)`},
						Unit:    "errors/s",
					},
					{
						Title:   "In-flight operations",
						Type:    "timeseries",
						Queries: []string{`sum(catalog_active_operations) by (operation)`},
					},
				},
			},
			{
				Title: "SLO Budgets",
				Panels: []Panel{
					{
						Title:   "Latency budget consumption",
						Type:    "timeseries",
						Queries: []string{`sum(rate(slo_latency_budget_consumed_total[30m])) by (operation)`},
					},
					{
						Title:   "Error budget consumption",
						Type:    "timeseries",
						Queries: []string{`sum(rate(slo_error_budget_consumed_total[30m])) by (operation)`},
					},
					{
						Title:   "Rate-limit hits",
						Type:    "timeseries",
						Queries: []string{`sum(rate(catalog_rate_limit_hits_total[15m])) by (operation)`},
					},
					{
						Title:   "Batch size distribution",
						Type:    "heatmap",
						Queries: []string{`sum(rate(catalog_batch_objects_bucket[15m])) by (le)`},
					},
				},
			},
			{
				Title: "API Drift",
				Panels: []Panel{
					{
						Title:   "Reported catalog version",
						Type:    "stat",
						Queries: []string{`catalog_api_version_info`},
					},
					{
						Title:   "Canary probe latency",
						Type:    "timeseries",
						Queries: []string{`histogram_quantile(0.95, sum(rate(catalog_operation_duration_seconds_bucket{operation=~"canary.*"}[30m])) by (le, operation))`},
						Unit:    "s",
					},
					{
						Title:   "Canary probe errors",
						Type:    "timeseries",
						Queries: []string{`sum(rate(catalog_operation_errors_total{operation=~"canary.*"}[30m])) by (operation, error_code)`},
					},
				},
			},
			{
				Title: "Process",
				Panels: []Panel{
					{
						Title:   "Heap in use",
						Type:    "timeseries",
						Queries: []string{`process_heap_alloc_bytes`},
						Unit:    "bytes",
					},
					{
						Title:   "Goroutines",
						Type:    "timeseries",
						Queries: []string{`process_goroutines`},
					},
					{
						Title:   "Scheduler lag p99",
						Type:    "timeseries",
						Queries: []string{`histogram_quantile(0.99, rate(process_scheduler_lag_seconds_bucket[10m]))`},
						Unit:    "s",
					},
				},
			},
		},
	}
}

// RenderDashboard serializes a dashboard document to YAML.
func RenderDashboard(doc DashboardDocument) ([]byte, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal dashboard: %w", err)
	}
	return out, nil
}
