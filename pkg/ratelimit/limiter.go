package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pricewatch/pkg/metrics"
)

const minRPS = 0.1

// Config configures an adaptive outbound token bucket.
type Config struct {
	Name           string
	RPS            float64
	Burst          int
	SafetyFactor   float64
	JitterFraction float64
}

// Limiter is a token bucket whose refill rate follows capacity hints
// reported by the upstream it guards.
type Limiter struct {
	name           string
	limiter        *rate.Limiter
	safetyFactor   float64
	jitterFraction float64

	mu  sync.Mutex
	rng *rand.Rand
}

func New(cfg Config) *Limiter {
	if cfg.RPS < minRPS {
		cfg.RPS = minRPS
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.SafetyFactor <= 0 || cfg.SafetyFactor > 1 {
		cfg.SafetyFactor = 0.8
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}

	l := &Limiter{
		name:           cfg.Name,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		safetyFactor:   cfg.SafetyFactor,
		jitterFraction: cfg.JitterFraction,
		rng:            rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	metrics.RateLimiterRPS.WithLabelValues(cfg.Name).Set(cfg.RPS)
	return l
}

// Acquire blocks until a token is available, then waits a random jitter of
// up to JitterFraction of the current refill interval. It returns the
// context error if ctx ends first.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.RateLimiterWaitDuration.WithLabelValues(l.name).Observe(float64(time.Since(start).Milliseconds()))
	}()

	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}

	jitter := l.jitter()
	if jitter <= 0 {
		return nil
	}
	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Observe applies an upstream capacity hint, for example a remaining-quota
// value, as rps = hint * SafetyFactor.
func (l *Limiter) Observe(hint float64) {
	if hint < 0 {
		return
	}
	rps := hint * l.safetyFactor
	if rps < minRPS {
		rps = minRPS
	}
	l.limiter.SetLimit(rate.Limit(rps))
	metrics.RateLimiterRPS.WithLabelValues(l.name).Set(rps)
}

func (l *Limiter) Limit() float64 {
	return float64(l.limiter.Limit())
}

func (l *Limiter) Burst() int {
	return l.limiter.Burst()
}

func (l *Limiter) jitter() time.Duration {
	if l.jitterFraction == 0 {
		return 0
	}
	interval := time.Duration(float64(time.Second) / l.Limit())
	max := float64(interval) * l.jitterFraction

	l.mu.Lock()
	f := l.rng.Float64()
	l.mu.Unlock()

	return time.Duration(f * max)
}
