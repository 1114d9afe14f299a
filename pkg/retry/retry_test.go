package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pricewatch/pkg/errors"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
		Jitter:          0.1,
	}
}

func TestRun_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.ErrThrottled
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRun_NonRetryableShortCircuits(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Run(context.Background(), func(context.Context) error {
		calls++
		return apperrors.ErrNotFound
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, apperrors.IsNotFound(err))

	var exhausted *RetriesExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestRun_ExhaustionWrapsLastError(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy(2)
	p.OnRetry = func(attempt int, _ error, _ time.Duration) {
		retried = append(retried, attempt)
	}

	err := p.Run(context.Background(), func(context.Context) error {
		calls++
		return apperrors.ErrThrottled
	})

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, apperrors.ErrThrottled)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRun_ZeroRetriesCallsOnce(t *testing.T) {
	calls := 0
	err := fastPolicy(0).Run(context.Background(), func(context.Context) error {
		calls++
		return apperrors.ErrServerError
	})

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, calls)
}

func TestRun_ContextCancelledStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy(100)
	p.InitialInterval = 20 * time.Millisecond
	p.MaxInterval = 20 * time.Millisecond

	calls := 0
	err := p.Run(ctx, func(context.Context) error {
		calls++
		cancel()
		return apperrors.ErrTimeout
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ReturnsValue(t *testing.T) {
	v, err := Do(context.Background(), fastPolicy(1), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestCalculateBackoffDuration(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoffDuration(0, 100*time.Millisecond, 2, time.Second))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoffDuration(2, 100*time.Millisecond, 2, time.Second))
	assert.Equal(t, time.Second, CalculateBackoffDuration(10, 100*time.Millisecond, 2, time.Second))
}
