package tracing

import (
	"fmt"
	"math/rand"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Sampling decision reasons recorded for diagnostics.
const (
	ReasonErrorSampling = "error_sampling"
	ReasonRateSampled   = "rate_sampled"
	ReasonRateDropped   = "rate_dropped"
)

// decisionHistoryLimit bounds the retained sampling decisions.
const decisionHistoryLimit = 1000

// Decision is the one-time sampling choice made for a trace.
// It is immutable after creation and retained only for diagnostics.
type Decision struct {
	TraceID string  `json:"trace_id"`
	Sampled bool    `json:"sampled"`
	Reason  string  `json:"reason"`
	Rate    float64 `json:"rate"`
}

// Stats is a snapshot of the sampler state for diagnostics.
type Stats struct {
	DefaultRate    float64            `json:"default_rate"`
	OperationRates map[string]float64 `json:"operation_rates"`
	Decisions      int                `json:"decisions"`
	Sampled        int                `json:"sampled"`
	Recent         []Decision         `json:"recent"`
}

// AdaptiveSampler is an OpenTelemetry sampler with per-operation rates and
// forced sampling of error-marked operations.
//
// It is intended to be wrapped in sdktrace.ParentBased so the decision is
// computed exactly once per trace: child spans inherit the root decision and
// never re-enter ShouldSample.
type AdaptiveSampler struct {
	mu          sync.Mutex
	defaultRate float64
	rates       map[string]float64
	rng         *rand.Rand

	// bounded FIFO of decisions for getSamplingStats-style diagnostics
	decisions map[string]Decision
	order     []string
	sampled   int
}

// NewAdaptiveSampler creates a sampler with the given default rate and
// per-operation overrides. Rates outside [0, 1] are clamped.
func NewAdaptiveSampler(defaultRate float64, operationRates map[string]float64, seed int64) *AdaptiveSampler {
	rates := make(map[string]float64, len(operationRates))
	for op, rate := range operationRates {
		rates[op] = clampRate(rate)
	}
	// #nosec G404 -- sampling draws do not need cryptographic randomness.
	return &AdaptiveSampler{
		defaultRate: clampRate(defaultRate),
		rates:       rates,
		rng:         rand.New(rand.NewSource(seed)),
		decisions:   make(map[string]Decision),
	}
}

// ShouldSample implements sdktrace.Sampler. Operations whose start
// attributes mark an error or exception condition are always sampled;
// everything else draws against the operation's configured rate.
func (s *AdaptiveSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	traceID := p.TraceID.String()

	if hasErrorMarker(p) {
		s.record(Decision{TraceID: traceID, Sampled: true, Reason: ReasonErrorSampling, Rate: 1})
		return samplingResult(true)
	}

	s.mu.Lock()
	rate, ok := s.rates[p.Name]
	if !ok {
		rate = s.defaultRate
	}
	draw := s.rng.Float64()
	s.mu.Unlock()

	sampled := draw < rate
	reason := ReasonRateDropped
	if sampled {
		reason = ReasonRateSampled
	}
	s.record(Decision{TraceID: traceID, Sampled: sampled, Reason: reason, Rate: rate})
	return samplingResult(sampled)
}

// Description implements sdktrace.Sampler.
func (s *AdaptiveSampler) Description() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("AdaptiveSampler{default=%v,operations=%d}", s.defaultRate, len(s.rates))
}

// ForceSample overrides the sampling rate for an operation at runtime.
// This is the operator hook for turning up tracing on a misbehaving
// operation without a restart. The rate is clamped to [0, 1].
func (s *AdaptiveSampler) ForceSample(operation string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[operation] = clampRate(rate)
}

// RateFor returns the effective sampling rate for an operation.
func (s *AdaptiveSampler) RateFor(operation string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rate, ok := s.rates[operation]; ok {
		return rate
	}
	return s.defaultRate
}

// DecisionFor returns the recorded decision for a trace id, if still retained.
func (s *AdaptiveSampler) DecisionFor(traceID string) (Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[traceID]
	return d, ok
}

// SamplingStats returns a snapshot of configured rates and recent decisions.
func (s *AdaptiveSampler) SamplingStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	rates := make(map[string]float64, len(s.rates))
	for op, rate := range s.rates {
		rates[op] = rate
	}

	// most recent decisions last
	recent := make([]Decision, 0, len(s.order))
	for _, id := range s.order {
		recent = append(recent, s.decisions[id])
	}

	return Stats{
		DefaultRate:    s.defaultRate,
		OperationRates: rates,
		Decisions:      len(s.order),
		Sampled:        s.sampled,
		Recent:         recent,
	}
}

// record stores a decision, evicting the oldest entry past the history limit.
func (s *AdaptiveSampler) record(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.decisions[d.TraceID]; exists {
		// Decision already made for this trace; never re-evaluate.
		return
	}

	s.decisions[d.TraceID] = d
	s.order = append(s.order, d.TraceID)
	if d.Sampled {
		s.sampled++
	}

	if len(s.order) > decisionHistoryLimit {
		evicted := s.order[0]
		s.order = s.order[1:]
		if s.decisions[evicted].Sampled {
			s.sampled--
		}
		delete(s.decisions, evicted)
	}
}

// hasErrorMarker reports whether the span-start attributes flag an error or
// exception condition.
func hasErrorMarker(p sdktrace.SamplingParameters) bool {
	for _, attr := range p.Attributes {
		key := string(attr.Key)
		switch key {
		case "error", "exception":
			if attr.Value.AsBool() || attr.Value.AsString() != "" {
				return true
			}
		}
		if key == "error.type" || key == "exception.type" {
			return true
		}
	}
	return false
}

func samplingResult(sampled bool) sdktrace.SamplingResult {
	if sampled {
		return sdktrace.SamplingResult{Decision: sdktrace.RecordAndSample}
	}
	return sdktrace.SamplingResult{Decision: sdktrace.Drop}
}

func clampRate(rate float64) float64 {
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}
