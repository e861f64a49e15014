package retry

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hintedError carries its own retry hint, like the catalog API envelope.
type hintedError struct {
	retryable bool
}

func (e *hintedError) Error() string   { return "hinted error" }
func (e *hintedError) Retryable() bool { return e.retryable }

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:    attempts,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		JitterFraction: 0,
	}
}

func TestWithBackoffSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithBackoffRetriesTransientFailure(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return &hintedError{retryable: true}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithBackoffStopsOnNonRetryable(t *testing.T) {
	terminal := &hintedError{retryable: false}
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		return terminal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, terminal)
}

func TestWithBackoffExhaustsAttempts(t *testing.T) {
	transient := &hintedError{retryable: true}
	calls := 0
	err := WithBackoff(context.Background(), fastConfig(3), func() error {
		calls++
		return transient
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
	assert.ErrorIs(t, err, transient)
}

func TestWithBackoffRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := Config{
		MaxAttempts:    5,
		InitialDelay:   time.Minute,
		MaxDelay:       time.Minute,
		Multiplier:     1.0,
		JitterFraction: 0,
	}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- WithBackoff(ctx, cfg, func() error {
			calls++
			return &hintedError{retryable: true}
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not abort on cancellation")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "nil", err: nil, retryable: false},
		{name: "context canceled", err: context.Canceled, retryable: false},
		{name: "context deadline", err: context.DeadlineExceeded, retryable: false},
		{name: "hinted retryable", err: &hintedError{retryable: true}, retryable: true},
		{name: "hinted terminal", err: &hintedError{retryable: false}, retryable: false},
		{name: "connection refused", err: syscall.ECONNREFUSED, retryable: true},
		{name: "connection reset", err: syscall.ECONNRESET, retryable: true},
		{name: "http 500", err: &HTTPError{StatusCode: http.StatusInternalServerError}, retryable: true},
		{name: "http 429", err: &HTTPError{StatusCode: http.StatusTooManyRequests}, retryable: true},
		{name: "http 408", err: &HTTPError{StatusCode: http.StatusRequestTimeout}, retryable: true},
		{name: "http 404", err: &HTTPError{StatusCode: http.StatusNotFound}, retryable: false},
		{name: "plain error", err: errors.New("something"), retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestAddJitter(t *testing.T) {
	base := 100 * time.Millisecond

	assert.Equal(t, base, addJitter(base, 0))

	for i := 0; i < 100; i++ {
		jittered := addJitter(base, 0.5)
		assert.GreaterOrEqual(t, jittered, base)
		assert.LessOrEqual(t, jittered, base+base/2)
	}
}

func TestCanaryConfigSingleAttempt(t *testing.T) {
	assert.Equal(t, 1, CanaryConfig().MaxAttempts)
}
