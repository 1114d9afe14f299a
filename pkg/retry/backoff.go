package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialBackoff builds an unbounded-elapsed exponential schedule.
// jitter is the randomization factor in [0,1].
func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier, jitter float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.Multiplier = multiplier
	exp.RandomizationFactor = jitter
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// CalculateBackoffDuration returns min(initial * multiplier^attempt, max) without jitter.
func CalculateBackoffDuration(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt))
	if duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}
