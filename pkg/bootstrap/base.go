package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	"pricewatch/pkg/health"
)

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Base carries what every service main needs: config, logger, health
// registry and the resources to release on shutdown, closed in reverse
// registration order.
type Base struct {
	Config  *config.Config
	Logger  logger.Logger
	Health  *health.CheckerRegistry
	closers []closer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
		Health: health.NewCheckerRegistry(),
	}
}

// OnShutdown registers fn to run during Shutdown.
func (b *Base) OnShutdown(name string, fn func(ctx context.Context) error) {
	b.closers = append(b.closers, closer{name: name, fn: fn})
}

func (b *Base) Shutdown(ctx context.Context) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		c := b.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s close error: %w", c.name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
