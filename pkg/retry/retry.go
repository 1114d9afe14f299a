package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/metrics"
)

// RetriesExhaustedError is returned when every attempt failed with a
// retryable error. It unwraps to the last underlying error.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts: %v", apperrors.ErrRetriesExhausted.Code, e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

type Policy struct {
	Name            string
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
	// Retryable overrides the error classifier. Defaults to errors.IsRetryable.
	Retryable func(error) bool
	OnRetry   func(attempt int, err error, nextDelay time.Duration)
}

func DefaultPolicy() Policy {
	return Policy{
		Name:            "default",
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.2,
	}
}

// Run calls fn until it succeeds, returns a non-retryable error, the context
// is done, or MaxRetries retries have been spent.
func (p Policy) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	classify := p.Retryable
	if classify == nil {
		classify = apperrors.IsRetryable
	}

	var b backoff.BackOff = ExponentialBackoff(p.InitialInterval, p.MaxInterval, p.Multiplier, p.Jitter)
	b = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	b = backoff.WithContext(b, ctx)

	attempts := 0
	var last error
	operation := func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		if !classify(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		if p.Name != "" {
			metrics.RetryAttemptsTotal.WithLabelValues(p.Name).Inc()
		}
		if p.OnRetry != nil {
			p.OnRetry(attempts, err, next)
		}
	}

	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return nil
	}
	if last == nil || !classify(last) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("retry %s interrupted after %d attempts: %w", p.Name, attempts, ctxErr)
	}
	if p.Name != "" {
		metrics.RetriesExhaustedTotal.WithLabelValues(p.Name).Inc()
	}
	return &RetriesExhaustedError{Attempts: attempts, Last: last}
}

// Do is Run for calls that return a value.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := p.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
