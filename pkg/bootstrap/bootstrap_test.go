package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/config"
	"pricewatch/internal/logger"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.PostgresConfig{
		Host:     "db",
		Port:     5432,
		User:     "pw",
		Password: "p@ss word",
		DBName:   "pricewatch",
	})
	assert.Equal(t, "postgres://pw:p%40ss+word@db:5432/pricewatch?sslmode=disable", dsn)
}

func TestBase_ShutdownRunsClosersInReverse(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())

	var order []string
	b.OnShutdown("redis", func(context.Context) error {
		order = append(order, "redis")
		return nil
	})
	b.OnShutdown("kafka", func(context.Context) error {
		order = append(order, "kafka")
		return errors.New("flush failed")
	})

	err := b.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka close error")
	assert.Equal(t, []string{"kafka", "redis"}, order)
}
