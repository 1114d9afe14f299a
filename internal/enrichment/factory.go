package enrichment

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"pricewatch/internal/config"
	"pricewatch/internal/constants"
	"pricewatch/internal/enrichment/provider"
	"pricewatch/internal/logger"
)

// Dependencies are the connections a provider may need. Any may be nil.
type Dependencies struct {
	Postgres *sql.DB
	Mongo    *mongo.Database
	Redis    redis.UniversalClient
}

// NewProvider builds the configured provider, wrapped in the Redis
// cache-aside layer when Redis is available and caching is enabled.
// It returns nil for type "none".
func NewProvider(cfg config.EnrichmentConfig, deps Dependencies, log logger.Logger) (provider.Provider, error) {
	var p provider.Provider

	switch cfg.Type {
	case "", constants.ProviderNameNone:
		return nil, nil
	case constants.ProviderNameAPI:
		p = provider.NewAPIProvider(cfg.URL, cfg.Timeout)
	case constants.ProviderNamePostgreSQL:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("enrichment type %q requires a postgres connection", cfg.Type)
		}
		pg, err := provider.NewPostgreSQLProvider(deps.Postgres, cfg.Table)
		if err != nil {
			return nil, err
		}
		p = pg
	case constants.ProviderNameMongoDB:
		if deps.Mongo == nil {
			return nil, fmt.Errorf("enrichment type %q requires a mongodb connection", cfg.Type)
		}
		p = provider.NewMongoDBProvider(deps.Mongo, cfg.Collection)
	default:
		return nil, fmt.Errorf("unknown enrichment type: %s", cfg.Type)
	}

	if deps.Redis != nil && cfg.CacheTTLSeconds > 0 {
		p = provider.NewCacheProvider(deps.Redis, p, time.Duration(cfg.CacheTTLSeconds)*time.Second, log)
	}

	return p, nil
}

// New returns the resilient enricher for cfg, or nil when enrichment is off.
func New(cfg config.EnrichmentConfig, deps Dependencies, log logger.Logger) (Enricher, error) {
	p, err := NewProvider(cfg, deps, log)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	log.Infow("Enrichment enabled",
		"provider", p.Name(),
	)
	return NewClient(p, cfg, log), nil
}
