// Package drift watches the external catalog API for silent behavioral
// change: version transitions the operator did not announce, probe failures,
// latency regressions and schema drift in canary responses.
//
// A Monitor runs two independent cadences against the wrapped client - a
// version poll and a canary probe battery - and accumulates anomalies in a
// bounded in-memory alert log. Alerts are purely observational: the monitor
// never blocks, retries or mutates the caller's business traffic.
package drift
