// Package idempotency detects redelivered messages that were already applied.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"pricewatch/internal/config"
	"pricewatch/internal/constants"
	"pricewatch/internal/logger"
	"pricewatch/pkg/metrics"
)

// Cache answers "was this key applied?" and records keys once applied.
type Cache struct {
	store       Store
	hasher      *Hasher
	ttl         time.Duration
	failOnError bool
	logger      logger.Logger
}

func NewCache(store Store, cfg config.IdempotencyConfig, log logger.Logger) *Cache {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		store:       store,
		hasher:      NewHasher(cfg.HashAlgorithm),
		ttl:         ttl,
		failOnError: cfg.OnCacheError == constants.OnCacheErrorFail,
		logger:      log,
	}
}

func (c *Cache) Key(messageID string, body []byte) string {
	return c.hasher.Key(messageID, body)
}

// Applied reports whether key was already committed. A cache failure is
// swallowed unless on_cache_error is "fail"; the state store's last-applied
// key and event-time rule still guard against double application.
func (c *Cache) Applied(ctx context.Context, key string) (bool, error) {
	seen, err := c.store.Seen(ctx, key)
	if err != nil {
		metrics.IdempotencyChecksTotal.WithLabelValues("error").Inc()
		if c.failOnError {
			return false, fmt.Errorf("idempotency check failed: %w", err)
		}
		c.logger.WarnwCtx(ctx, "Idempotency cache unavailable, proceeding",
			"error", err,
		)
		return false, nil
	}
	if seen {
		metrics.IdempotencyChecksTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.IdempotencyChecksTotal.WithLabelValues("miss").Inc()
	}
	return seen, nil
}

// Commit records key after the state upsert succeeded. Failures are logged
// only; redelivery is still caught by the state store.
func (c *Cache) Commit(ctx context.Context, key string) {
	if err := c.store.Mark(ctx, key, c.ttl); err != nil {
		c.logger.WarnwCtx(ctx, "Failed to record idempotency key",
			"error", err,
		)
	}
}
