// Package observability composes tracing, metrics and drift monitoring
// behind a single facade.
//
// Callers wrap each unit of work in Facade.TraceOperation, which routes
// timing and outcome to the trace controller and the metrics registry in
// one call. The drift monitor runs its own cadences against the wrapped
// catalog client; the facade aggregates its alerts into the health check
// and dashboard views.
//
// Subpackages:
//   - tracing: span lifecycle, adaptive sampling, sensitive-data scrubbing
//   - metrics: golden-signal instruments and SLO budget tracking
//   - drift: version polling and the canary probe battery
//   - logging: structured logging with trace correlation
//   - slo: SLO budget counters
//   - artifacts: alert-rule and dashboard documents for external systems
package observability
