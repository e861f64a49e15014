package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteSuccess(t *testing.T) {
	cb := New(DefaultConfig("test"))

	value, err := cb.Execute(func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestExecutePropagatesError(t *testing.T) {
	cb := New(DefaultConfig("test"))
	boom := errors.New("boom")

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestTripsAfterFailureThreshold(t *testing.T) {
	cb := New(Config{
		Name:             "trippy",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      4,
	})
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, boom
		})
	}

	assert.True(t, cb.IsOpen())

	_, err := cb.Execute(func() (interface{}, error) {
		t.Fatal("function must not run while circuit is open")
		return nil, nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestStaysClosedBelowMinRequests(t *testing.T) {
	cb := New(Config{
		Name:             "patient",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.1,
		MinRequests:      100,
	})

	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, errors.New("boom")
		})
	}
	assert.False(t, cb.IsOpen())
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := New(Config{
		Name:             "recovering",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          20 * time.Millisecond,
		FailureThreshold: 0.5,
		MinRequests:      2,
	})

	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, errors.New("boom")
		})
	}
	require.True(t, cb.IsOpen())

	time.Sleep(50 * time.Millisecond)

	_, err := cb.Execute(func() (interface{}, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestName(t *testing.T) {
	assert.Equal(t, "catalog-api", New(CatalogAPIConfig()).Name())
	assert.Equal(t, "catalog-canary", New(CanaryConfig()).Name())
}
