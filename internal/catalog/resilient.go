package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"catalog-pulse/internal/resilience/circuitbreaker"
	"catalog-pulse/internal/resilience/retry"
)

// ErrCircuitOpen is returned when the catalog circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("catalog circuit breaker open")

// ResilientClient wraps a Client with circuit breaking and retry. It is the
// monitoring layer's own defense against a flapping catalog service: probe
// and poll traffic stops hammering a failing dependency, while the wrapped
// business calls keep their errors unchanged.
type ResilientClient struct {
	inner   Client
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Config
}

// NewResilientClient wraps inner with the given breaker and retry configs.
func NewResilientClient(inner Client, cbCfg circuitbreaker.Config, retryCfg retry.Config) *ResilientClient {
	return &ResilientClient{
		inner:   inner,
		breaker: circuitbreaker.New(cbCfg),
		retry:   retryCfg,
	}
}

// BreakerOpen reports whether the underlying circuit is currently open.
func (c *ResilientClient) BreakerOpen() bool {
	return c.breaker.IsOpen()
}

// CatalogInfo fetches API capabilities and limits.
func (c *ResilientClient) CatalogInfo(ctx context.Context) (*Info, error) {
	return execute(ctx, c, func() (*Info, error) {
		return c.inner.CatalogInfo(ctx)
	})
}

// ListLocations enumerates the merchant's locations.
func (c *ResilientClient) ListLocations(ctx context.Context) ([]Location, error) {
	return execute(ctx, c, func() ([]Location, error) {
		return c.inner.ListLocations(ctx)
	})
}

// SearchObjects runs a catalog object search.
func (c *ResilientClient) SearchObjects(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	return execute(ctx, c, func() (*SearchResult, error) {
		return c.inner.SearchObjects(ctx, req)
	})
}

// APIVersion returns the version string the service currently reports.
func (c *ResilientClient) APIVersion(ctx context.Context) (string, error) {
	return execute(ctx, c, func() (string, error) {
		return c.inner.APIVersion(ctx)
	})
}

// execute runs fn through the breaker with retry. The original error from
// the last attempt is preserved; only the open-circuit rejection is
// translated into ErrCircuitOpen.
func execute[T any](ctx context.Context, c *ResilientClient, fn func() (T, error)) (T, error) {
	var result T
	err := retry.WithBackoff(ctx, c.retry, func() error {
		value, cbErr := c.breaker.Execute(func() (interface{}, error) {
			return fn()
		})
		if cbErr != nil {
			return cbErr
		}
		if typed, ok := value.(T); ok {
			result = typed
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return result, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		return result, err
	}
	return result, nil
}
