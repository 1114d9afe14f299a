package idempotency

import (
	"context"
	"errors"
	"time"

	"pricewatch/pkg/circuitbreaker"
)

// CircuitBreakerStore stops hammering an unreachable cache. Every error other
// than caller cancellation counts as a failure.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg circuitbreaker.Config) *CircuitBreakerStore {
	if cfg.Name == "" {
		cfg.Name = "redis-idempotency"
	}
	cfg.IsFailure = func(err error) bool {
		return !errors.Is(err, context.Canceled)
	}
	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cfg),
	}
}

func (s *CircuitBreakerStore) Seen(ctx context.Context, key string) (bool, error) {
	var seen bool
	err := s.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		seen, err = s.store.Seen(ctx, key)
		return err
	})
	return seen, err
}

func (s *CircuitBreakerStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return s.cb.Execute(ctx, func(ctx context.Context) error {
		return s.store.Mark(ctx, key, ttl)
	})
}

func (s *CircuitBreakerStore) State() string {
	return s.cb.State().String()
}
