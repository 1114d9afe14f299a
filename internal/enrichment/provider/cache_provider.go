package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"pricewatch/internal/constants"
	"pricewatch/internal/logger"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

// CacheProvider is a cache-aside decorator: hits are served from Redis,
// misses go to the wrapped provider and are written back with a TTL. Cache
// failures degrade to a direct fetch.
type CacheProvider struct {
	client redis.UniversalClient
	next   Provider
	ttl    time.Duration
	logger logger.Logger
}

func NewCacheProvider(client redis.UniversalClient, next Provider, ttl time.Duration, log logger.Logger) *CacheProvider {
	return &CacheProvider{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: log,
	}
}

func (p *CacheProvider) Name() string {
	return constants.ProviderNameCache + "+" + p.next.Name()
}

func (p *CacheProvider) Fetch(ctx context.Context, subjectKey string) (*models.EnrichmentData, error) {
	key := constants.CacheKeyPrefixEnrich + subjectKey

	val, err := p.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var data models.EnrichmentData
		if jsonErr := json.Unmarshal(val, &data); jsonErr == nil {
			metrics.EnrichmentCacheTotal.WithLabelValues("hit").Inc()
			return &data, nil
		}
		metrics.EnrichmentCacheTotal.WithLabelValues("corrupt").Inc()
	case errors.Is(err, redis.Nil):
		metrics.EnrichmentCacheTotal.WithLabelValues("miss").Inc()
	default:
		metrics.EnrichmentCacheTotal.WithLabelValues("error").Inc()
		p.logger.WarnwCtx(ctx, "Enrichment cache read failed",
			"error", err,
		)
	}

	data, err := p.next.Fetch(ctx, subjectKey)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err == nil {
		if err := p.client.Set(ctx, key, body, p.ttl).Err(); err != nil {
			p.logger.WarnwCtx(ctx, "Enrichment cache write failed",
				"error", err,
			)
		}
	}

	return data, nil
}
