//go:build integration

package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	"pricewatch/internal/testinfra"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/models"
)

func TestPostgresStore_Integration(t *testing.T) {
	db := testinfra.Postgres(t)
	s := NewPostgresStore(db, "ingest")
	ctx := context.Background()

	rec := newRecord()
	require.NoError(t, s.Create(ctx, rec))

	dup := newRecord()
	assert.True(t, apperrors.IsConflict(s.Create(ctx, dup)), "one active record per fingerprint")

	ok, err := s.MarkDelivered(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	now := ts.Add(time.Hour)
	rec.Status = models.AlertStatusResolved
	rec.ResolvedAt = &now
	rec.ResolveReason = models.ResolveReasonRecovered
	assert.True(t, apperrors.IsConflict(s.Update(ctx, rec)), "version read before delivery")

	stored, err := s.ListActiveBySubject(ctx, "B1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(1), stored[0].Version)

	rec.Version = stored[0].Version
	require.NoError(t, s.Update(ctx, rec))
	assert.Equal(t, int64(2), rec.Version)

	// Resolved records no longer occupy the fingerprint.
	again := newRecord()
	require.NoError(t, s.Create(ctx, again))

	active, err := s.ListActiveBySubject(ctx, "B1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, again.ID, active[0].ID)

	all, err := s.List(ctx, ListFilter{SubjectKey: "B1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, again.ID, all[0].ID, "newest first")
	assert.Equal(t, models.ResolveReasonRecovered, all[1].ResolveReason)

	quiet, err := s.ListQuiet(ctx, ts.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, quiet, 1)
}

func TestManager_PostgresIntegration(t *testing.T) {
	db := testinfra.Postgres(t)
	m := NewManager(NewPostgresStore(db, "ingest"), nil, config.DefaultAlertingConfig(), logger.NopLogger())
	ctx := context.Background()

	_, err := m.Observe(ctx, "B9", models.SeverityHigh)
	require.NoError(t, err)
	events, err := m.Observe(ctx, "B9", models.SeverityCritical)
	require.NoError(t, err)
	require.Len(t, events, 2)

	active, err := m.Store().ListActiveBySubject(ctx, "B9")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.SeverityCritical, active[0].SeverityTier)
}
