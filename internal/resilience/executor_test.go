package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(breaker bool) Config {
	return Config{
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         2 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          breaker,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	exec := NewExecutor(fastRetry(false))
	errTemp := errors.New("temporary")

	attempts := 0
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecuteStopsOnPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastRetry(false))
	errPermanent := errors.New("bad request")

	attempts := 0
	err := exec.Execute(context.Background(), "embed", func(context.Context) error {
		attempts++
		return errPermanent
	}, nil)
	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, attempts)
}

func TestExecuteGivesUpAfterMaxAttempts(t *testing.T) {
	exec := NewExecutor(fastRetry(false))
	errTemp := errors.New("temporary")

	attempts := 0
	err := exec.Execute(context.Background(), "complete", func(context.Context) error {
		attempts++
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	require.ErrorIs(t, err, errTemp)
	assert.Equal(t, 3, attempts)
}

func TestExecuteOpensCircuit(t *testing.T) {
	cfg := fastRetry(true)
	cfg.RetryMaxAttempts = 1
	exec := NewExecutor(cfg)
	errTemp := errors.New("down")

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "complete", func(context.Context) error {
			return errTemp
		}, nil)
		require.ErrorIs(t, err, errTemp)
	}

	err := exec.Execute(context.Background(), "complete", func(context.Context) error {
		t.Fatalf("circuit should be open")
		return nil
	}, nil)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestExecuteHonoursCancelledContext(t *testing.T) {
	exec := NewExecutor(fastRetry(false))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := exec.Execute(ctx, "embed", func(context.Context) error {
		called = true
		return nil
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
