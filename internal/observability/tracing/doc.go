// Package tracing provides span lifecycle management with adaptive sampling
// and sensitive-data scrubbing on top of the OpenTelemetry SDK.
//
// The Controller owns every span it starts: operations are registered in an
// active-span map keyed by trace id, ended exactly once, and scrubbed before
// any attribute or log line leaves the process. Sampling is decided once per
// trace by the AdaptiveSampler - error-marked operations are always sampled,
// everything else follows a per-operation rate.
//
// Example usage:
//
//	op := controller.StartOperation(ctx, "catalog.search", map[string]any{
//	    "merchant_id": merchantID,
//	})
//	result, err := doSearch(op.Context)
//	op.End(&tracing.Result{ObjectCount: len(result.Objects)}, err, nil)
package tracing
