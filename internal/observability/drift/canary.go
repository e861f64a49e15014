package drift

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"catalog-pulse/internal/catalog"
	"catalog-pulse/internal/observability/metrics"
)

// Canary probe operation names. The battery is built from exactly the four
// read-only calls the catalog client is required to expose.
const (
	ProbeCatalogInfo = "canary.catalog_info"
	ProbeLocations   = "canary.locations_list"
	ProbeSearch      = "canary.object_search"
	ProbeVersion     = "canary.api_version"
)

// Canary anomaly kinds.
const (
	AnomalyProbeFailure = "probe_failure"
	AnomalyHighLatency  = "high_latency"
	AnomalySchemaDrift  = "schema_drift"
)

// ProbeResult is the outcome of one canary probe. Results are ephemeral:
// produced, analyzed and discarded within a single canary tick.
type ProbeResult struct {
	Operation       string        `json:"operation"`
	Success         bool          `json:"success"`
	Duration        time.Duration `json:"duration_ms"`
	StructuralFlags []string      `json:"structural_flags,omitempty"`
	Err             error         `json:"-"`
}

// Anomaly is one finding from analyzing a canary battery run.
type Anomaly struct {
	Probe  string `json:"probe"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// PerformCanaryOperation fans the probe battery out concurrently against
// the wrapped client and joins the results. Each probe carries its own
// timeout so one slow probe cannot wedge the tick.
func (m *Monitor) PerformCanaryOperation(ctx context.Context) []ProbeResult {
	probes := []struct {
		name string
		run  func(ctx context.Context) ([]string, error)
	}{
		{ProbeCatalogInfo, m.probeCatalogInfo},
		{ProbeLocations, m.probeLocations},
		{ProbeSearch, m.probeSearch},
		{ProbeVersion, m.probeVersion},
	}

	results := make([]ProbeResult, len(probes))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for i, probe := range probes {
		i, probe := i, probe
		group.Go(func() error {
			probeCtx, cancel := context.WithTimeout(groupCtx, m.probeTimeout)
			defer cancel()

			start := time.Now()
			flags, err := probe.run(probeCtx)
			result := ProbeResult{
				Operation:       probe.name,
				Success:         err == nil,
				Duration:        time.Since(start),
				StructuralFlags: flags,
				Err:             err,
			}

			mu.Lock()
			results[i] = result
			mu.Unlock()

			if m.metrics != nil {
				status := metrics.StatusSuccess
				if err != nil {
					status = metrics.StatusError
					m.metrics.RecordError(probe.name, err)
				}
				m.metrics.RecordOperation(probe.name, result.Duration, status, m.merchantID)
			}
			// probe errors are captured in the result; never abort the group
			return nil
		})
	}
	_ = group.Wait()

	return results
}

// probeCatalogInfo checks the capability fetch and the structural presence
// of the limits block and version field.
func (m *Monitor) probeCatalogInfo(ctx context.Context) ([]string, error) {
	info, err := m.client.CatalogInfo(ctx)
	if err != nil {
		return nil, err
	}
	var flags []string
	if info.Limits == nil {
		flags = append(flags, "missing_limits")
	}
	if info.APIVersion == "" {
		flags = append(flags, "missing_api_version")
	}
	return flags, nil
}

func (m *Monitor) probeLocations(ctx context.Context) ([]string, error) {
	locations, err := m.client.ListLocations(ctx)
	if err != nil {
		return nil, err
	}
	var flags []string
	for _, location := range locations {
		if location.ID == "" {
			flags = append(flags, "missing_location_id")
			break
		}
	}
	return flags, nil
}

func (m *Monitor) probeSearch(ctx context.Context) ([]string, error) {
	result, err := m.client.SearchObjects(ctx, catalog.SearchRequest{
		ObjectTypes: []string{"ITEM"},
		Limit:       1,
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return []string{"missing_body"}, nil
	}
	var flags []string
	for _, object := range result.Objects {
		if object.ID == "" || object.Type == "" {
			flags = append(flags, "malformed_object")
			break
		}
	}
	return flags, nil
}

func (m *Monitor) probeVersion(ctx context.Context) ([]string, error) {
	version, err := m.client.APIVersion(ctx)
	if err != nil {
		return nil, err
	}
	if version == "" {
		return []string{"missing_version"}, nil
	}
	return nil, nil
}

// analyzeCanaryResults flags probe failures, latency above the fixed
// ceiling, and structural drift in otherwise valid responses.
func (m *Monitor) analyzeCanaryResults(results []ProbeResult) []Anomaly {
	var anomalies []Anomaly
	for _, result := range results {
		if !result.Success {
			anomalies = append(anomalies, Anomaly{
				Probe:  result.Operation,
				Kind:   AnomalyProbeFailure,
				Detail: errDetail(result.Err),
			})
			continue
		}
		if result.Duration > m.latencyCeiling {
			anomalies = append(anomalies, Anomaly{
				Probe:  result.Operation,
				Kind:   AnomalyHighLatency,
				Detail: fmt.Sprintf("probe took %v, ceiling %v", result.Duration, m.latencyCeiling),
			})
		}
		for _, flag := range result.StructuralFlags {
			anomalies = append(anomalies, Anomaly{
				Probe:  result.Operation,
				Kind:   AnomalySchemaDrift,
				Detail: flag,
			})
		}
	}
	return anomalies
}

// RunCanary executes one canary tick: fan out the battery, analyze, and
// raise one alert per anomaly. Returns the anomalies for callers that want
// to assert on them directly.
func (m *Monitor) RunCanary(ctx context.Context) []Anomaly {
	results := m.PerformCanaryOperation(ctx)
	anomalies := m.analyzeCanaryResults(results)

	for _, anomaly := range anomalies {
		severity := SeverityWarning
		if anomaly.Kind == AnomalyProbeFailure {
			severity = SeverityCritical
		}
		m.raiseAlert(Alert{
			Type:     AlertTypeCanary,
			Severity: severity,
			Message:  fmt.Sprintf("canary %s: %s on %s", anomaly.Kind, anomaly.Detail, anomaly.Probe),
			Details: map[string]any{
				"probe":       anomaly.Probe,
				"kind":        anomaly.Kind,
				"detail":      anomaly.Detail,
				"merchant_id": m.merchantID,
			},
			Runbook: "Compare the probe response against the catalog API reference for the " +
				"currently reported version. Schema drift usually accompanies an unannounced " +
				"version change; check the version history before escalating to the provider.",
		})
	}

	if len(anomalies) == 0 {
		m.logger.Debug("canary battery clean", slog.Int("probes", len(results)))
	}
	return anomalies
}

func errDetail(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return err.Error()
}
