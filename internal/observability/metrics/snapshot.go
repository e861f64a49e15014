package metrics

import (
	"fmt"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Snapshot is the JSON export of the metric state, built by gathering the
// underlying Prometheus registry. It complements the text exposition
// endpoint for consumers that want structured data.
type Snapshot struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	Totals      Totals                      `json:"totals"`
	Families    map[string][]SnapshotSeries `json:"families"`
}

// SnapshotSeries is one labeled series within a metric family.
type SnapshotSeries struct {
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
	Count  uint64            `json:"count,omitempty"`
	Sum    float64           `json:"sum,omitempty"`
}

// JSONSnapshot gathers the registry into a Snapshot. Gather errors are
// returned to the caller; partial results are not reported.
func (r *Registry) JSONSnapshot() (*Snapshot, error) {
	families, err := r.prom.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	snapshot := &Snapshot{
		GeneratedAt: time.Now().UTC(),
		Totals:      r.Totals(),
		Families:    make(map[string][]SnapshotSeries, len(families)),
	}

	for _, family := range families {
		series := make([]SnapshotSeries, 0, len(family.GetMetric()))
		for _, metric := range family.GetMetric() {
			series = append(series, seriesFromMetric(family.GetType(), metric))
		}
		snapshot.Families[family.GetName()] = series
	}
	return snapshot, nil
}

func seriesFromMetric(familyType dto.MetricType, metric *dto.Metric) SnapshotSeries {
	series := SnapshotSeries{}
	if labels := metric.GetLabel(); len(labels) > 0 {
		series.Labels = make(map[string]string, len(labels))
		for _, pair := range labels {
			series.Labels[pair.GetName()] = pair.GetValue()
		}
	}

	switch familyType {
	case dto.MetricType_COUNTER:
		series.Value = metric.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		series.Value = metric.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		histogram := metric.GetHistogram()
		series.Count = histogram.GetSampleCount()
		series.Sum = histogram.GetSampleSum()
	case dto.MetricType_SUMMARY:
		summary := metric.GetSummary()
		series.Count = summary.GetSampleCount()
		series.Sum = summary.GetSampleSum()
	}
	return series
}
