package alerting

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/models"
)

var columns = []string{
	"id", "subject_key", "severity", "status", "snooze_until", "escalation_level",
	"acknowledged_at", "last_escalated_at", "resolved_at", "resolve_reason", "created_at", "last_seen_at", "version",
}

var ts = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, "ingest"), mock
}

func newRecord() *models.AlertRecord {
	return &models.AlertRecord{
		SubjectKey:      "B1",
		SeverityTier:    models.SeverityHigh,
		Status:          models.AlertStatusQueued,
		LastEscalatedAt: ts,
		CreatedAt:       ts,
		LastSeenAt:      ts,
	}
}

func TestPostgresStore_Create(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO alert_records")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	rec := newRecord()
	require.NoError(t, s.Create(context.Background(), rec))
	assert.Equal(t, int64(7), rec.ID)
	assert.Equal(t, "B1|HIGH", rec.Fingerprint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateUniqueViolationIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO alert_records")).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := s.Create(context.Background(), newRecord())
	assert.True(t, apperrors.IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCompareAndSet(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		conflict bool
	}{
		{"applied", 1, false},
		{"version moved on underneath", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			rec := newRecord()
			rec.ID = 3
			rec.Status = models.AlertStatusResolved
			rec.Version = 5

			mock.ExpectExec(regexp.QuoteMeta("version = version + 1\nWHERE id = $1 AND version = $10")).
				WithArgs(int64(3), "resolved", sqlmock.AnyArg(), int64(0), sqlmock.AnyArg(),
					ts, sqlmock.AnyArg(), "", ts, int64(5)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := s.Update(context.Background(), rec)
			if tt.conflict {
				assert.True(t, apperrors.IsConflict(err))
				assert.Equal(t, int64(5), rec.Version)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, int64(6), rec.Version)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_MarkDelivered(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'delivered', version = version + 1 WHERE id = $1 AND status = 'queued'")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'delivered'")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.MarkDelivered(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkDelivered(context.Background(), 4)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListActiveBySubjectScansNullables(t *testing.T) {
	s, mock := newMockStore(t)
	snooze := ts.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE subject_key = $1 AND status IN")).
		WithArgs("B1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(1), "B1", "HIGH", "snoozed", snooze, 1, nil, ts, nil, "", ts, ts, int64(2)))

	recs, err := s.ListActiveBySubject(context.Background(), "B1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "B1|HIGH", recs[0].Fingerprint)
	assert.Equal(t, models.AlertStatusSnoozed, recs[0].Status)
	require.NotNil(t, recs[0].SnoozeUntil)
	assert.True(t, snooze.Equal(*recs[0].SnoozeUntil))
	assert.Nil(t, recs[0].AcknowledgedAt)
	assert.Nil(t, recs[0].ResolvedAt)
	assert.Equal(t, int64(2), recs[0].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBuildsFilter(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE subject_key = $1 AND status = $2 ORDER BY id DESC LIMIT $3")).
		WithArgs("B1", "resolved", int64(1000)).
		WillReturnRows(sqlmock.NewRows(columns))

	recs, err := s.List(context.Background(), ListFilter{
		SubjectKey: "B1",
		Status:     models.AlertStatusResolved,
		Limit:      100000,
	})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
