// Package metrics provides golden-signal Prometheus metrics for catalog
// operations: latency and traffic histograms, error counters with
// classification dimensions, and an in-flight saturation gauge.
//
// All instruments hang off an explicitly constructed Registry rather than
// the package-global Prometheus default, so tests and multi-tenant wiring
// each own an isolated metric space.
package metrics
