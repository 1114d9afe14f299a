package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pricewatch/internal/constants"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

// The WHERE clause on the conflict branch is the compare-and-swap: the row
// only changes when the incoming event is not older and not a replay.
const upsertQuery = `
INSERT INTO current_states
    (subject_key, last_event_time, fields, severity, enrichment_degraded, last_idempotency_key, version, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
ON CONFLICT (subject_key) DO UPDATE SET
    last_event_time      = EXCLUDED.last_event_time,
    fields               = EXCLUDED.fields,
    severity             = EXCLUDED.severity,
    enrichment_degraded  = EXCLUDED.enrichment_degraded,
    last_idempotency_key = EXCLUDED.last_idempotency_key,
    version              = current_states.version + 1,
    updated_at           = EXCLUDED.updated_at
WHERE current_states.last_event_time <= EXCLUDED.last_event_time
  AND current_states.last_idempotency_key <> EXCLUDED.last_idempotency_key
RETURNING subject_key, last_event_time, fields, severity, enrichment_degraded, last_idempotency_key, version, updated_at`

const selectQuery = `
SELECT subject_key, last_event_time, fields, severity, enrichment_degraded, last_idempotency_key, version, updated_at
FROM current_states
WHERE subject_key = $1`

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Upsert(ctx context.Context, upd models.StateUpdate) (Outcome, *models.CurrentState, error) {
	fields, err := json.Marshal(upd.Fields)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal state fields: %w", err)
	}

	start := time.Now()
	row := s.db.QueryRowContext(ctx, upsertQuery,
		upd.SubjectKey,
		upd.EventTime.UTC(),
		fields,
		string(upd.Severity),
		upd.EnrichmentDegraded,
		upd.IdempotencyKey,
		s.now().UTC(),
	)
	st, err := scanState(row)
	observe("upsert", start, err)

	if err == nil {
		metrics.StateUpsertsTotal.WithLabelValues(string(Applied)).Inc()
		return Applied, st, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("state upsert failed: %w", err)
	}

	// The conditional update matched nothing: find out why.
	current, err := s.Get(ctx, upd.SubjectKey)
	if err != nil {
		return "", nil, err
	}
	outcome := Stale
	if current.LastIdempotencyKey == upd.IdempotencyKey {
		outcome = Duplicate
	}
	metrics.StateUpsertsTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, current, nil
}

func (s *PostgresStore) Get(ctx context.Context, subjectKey string) (*models.CurrentState, error) {
	start := time.Now()
	st, err := scanState(s.db.QueryRowContext(ctx, selectQuery, subjectKey))
	observe("select", start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound.WithDetail("subject_key", subjectKey)
	}
	if err != nil {
		return nil, fmt.Errorf("state lookup failed: %w", err)
	}
	return st, nil
}

func scanState(row *sql.Row) (*models.CurrentState, error) {
	var (
		st       models.CurrentState
		fields   []byte
		severity string
	)
	if err := row.Scan(
		&st.SubjectKey,
		&st.LastEventTime,
		&fields,
		&severity,
		&st.EnrichmentDegraded,
		&st.LastIdempotencyKey,
		&st.Version,
		&st.UpdatedAt,
	); err != nil {
		return nil, err
	}
	st.Severity = models.Severity(severity)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &st.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode state fields: %w", err)
		}
	}
	return &st, nil
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.IncDatabaseQuery(constants.ServiceNameIngest, "postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceNameIngest, "postgres", operation, time.Since(start))
}
