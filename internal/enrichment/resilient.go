package enrichment

import (
	"context"

	"pricewatch/pkg/circuitbreaker"
	"pricewatch/pkg/ratelimit"
	"pricewatch/pkg/retry"
)

// ResilientClient guards outbound calls with, in order, the rate limiter,
// the circuit breaker and the retry policy. Retries run inside one breaker
// slot, so a retry storm counts as a single breaker failure.
type ResilientClient struct {
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.Wrapper
	policy  retry.Policy
}

func NewResilientClient(limiter *ratelimit.Limiter, breaker *circuitbreaker.Wrapper, policy retry.Policy) *ResilientClient {
	return &ResilientClient{
		limiter: limiter,
		breaker: breaker,
		policy:  policy,
	}
}

func (c *ResilientClient) Limiter() *ratelimit.Limiter {
	return c.limiter
}

func (c *ResilientClient) Breaker() *circuitbreaker.Wrapper {
	return c.breaker
}

// Do runs fn through c. The limiter token is taken once per logical call,
// not per retry attempt.
func Do[T any](ctx context.Context, c *ResilientClient, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T

	if err := c.limiter.Acquire(ctx); err != nil {
		return result, err
	}

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		v, err := retry.Do(ctx, c.policy, fn)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
