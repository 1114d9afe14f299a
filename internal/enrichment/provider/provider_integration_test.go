//go:build integration

package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"pricewatch/internal/logger"
	"pricewatch/internal/testinfra"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/models"
)

func TestPostgreSQLProvider_Integration(t *testing.T) {
	db := testinfra.Postgres(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx,
		`INSERT INTO enrichment_data (subject_key, unit_cost, fees, estimated_volume) VALUES ($1, $2, $3, $4)`,
		"B0001", 4.5, 1.0, 200.0)
	require.NoError(t, err)

	p, err := NewPostgreSQLProvider(db, "enrichment_data")
	require.NoError(t, err)

	data, err := p.Fetch(ctx, "B0001")
	require.NoError(t, err)
	assert.Equal(t, 200.0, *data.EstimatedVolume)
	assert.Nil(t, data.MarginPct)

	_, err = p.Fetch(ctx, "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMongoDBProvider_Integration(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()

	volume := 75.0
	_, err := db.Collection("enrichment").InsertOne(ctx, models.EnrichmentData{SubjectKey: "B0001", EstimatedVolume: &volume})
	require.NoError(t, err)

	p := NewMongoDBProvider(db, "enrichment")
	data, err := p.Fetch(ctx, "B0001")
	require.NoError(t, err)
	assert.Equal(t, 75.0, *data.EstimatedVolume)

	_, err = p.Fetch(ctx, "nope")
	assert.True(t, apperrors.IsNotFound(err))

	count, err := db.Collection("enrichment").CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCacheProvider_Integration(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()

	inner := NewStaticProvider()
	volume := 42.0
	inner.Set("B0001", models.EnrichmentData{EstimatedVolume: &volume})

	p := NewCacheProvider(client, inner, time.Minute, logger.NopLogger())

	first, err := p.Fetch(ctx, "B0001")
	require.NoError(t, err)
	second, err := p.Fetch(ctx, "B0001")
	require.NoError(t, err)

	assert.Equal(t, *first.EstimatedVolume, *second.EstimatedVolume)
	assert.Equal(t, 1, inner.Calls(), "second fetch is served from redis")

	_, err = p.Fetch(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}
