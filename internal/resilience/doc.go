// Package resilience contains resilience patterns for external service calls.
//
// Subpackages:
//   - circuitbreaker: Circuit breaker pattern using sony/gobreaker
//   - retry: Retry logic with exponential backoff and jitter
package resilience
