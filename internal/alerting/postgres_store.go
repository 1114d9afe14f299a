package alerting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"pricewatch/internal/constants"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

const uniqueViolation = "23505"

const alertColumns = `id, subject_key, severity, status, snooze_until, escalation_level,
    acknowledged_at, last_escalated_at, resolved_at, resolve_reason, created_at, last_seen_at, version`

const activeStatuses = `('queued', 'delivered', 'snoozed')`

type PostgresStore struct {
	db      *sql.DB
	service string
}

func NewPostgresStore(db *sql.DB, service string) *PostgresStore {
	return &PostgresStore{db: db, service: service}
}

func (s *PostgresStore) Create(ctx context.Context, rec *models.AlertRecord) error {
	start := time.Now()
	err := s.db.QueryRowContext(ctx, `
INSERT INTO alert_records
    (subject_key, severity, status, snooze_until, escalation_level, acknowledged_at,
     last_escalated_at, resolved_at, resolve_reason, created_at, last_seen_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id`,
		rec.SubjectKey, string(rec.SeverityTier), string(rec.Status), rec.SnoozeUntil, rec.EscalationLevel,
		rec.AcknowledgedAt, rec.LastEscalatedAt, rec.ResolvedAt, rec.ResolveReason, rec.CreatedAt, rec.LastSeenAt,
	).Scan(&rec.ID)
	s.observe("insert", start, err)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperrors.ErrConflict.WithDetail("fingerprint", models.NewFingerprint(rec.SubjectKey, rec.SeverityTier).String())
	}
	if err != nil {
		return fmt.Errorf("failed to insert alert record: %w", err)
	}
	rec.Fingerprint = models.NewFingerprint(rec.SubjectKey, rec.SeverityTier).String()
	rec.Version = 0
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *models.AlertRecord) error {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
UPDATE alert_records SET
    status = $2, snooze_until = $3, escalation_level = $4, acknowledged_at = $5,
    last_escalated_at = $6, resolved_at = $7, resolve_reason = $8, last_seen_at = $9,
    version = version + 1
WHERE id = $1 AND version = $10`,
		rec.ID, string(rec.Status), rec.SnoozeUntil, rec.EscalationLevel, rec.AcknowledgedAt,
		rec.LastEscalatedAt, rec.ResolvedAt, rec.ResolveReason, rec.LastSeenAt, rec.Version,
	)
	s.observe("update", start, err)
	if err != nil {
		return fmt.Errorf("failed to update alert record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.ErrConflict.WithDetail("id", rec.ID)
	}
	rec.Version++
	return nil
}

func (s *PostgresStore) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_records SET status = 'delivered', version = version + 1 WHERE id = $1 AND status = 'queued'`, id)
	s.observe("update", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to mark alert delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListActiveBySubject(ctx context.Context, subjectKey string) ([]models.AlertRecord, error) {
	return s.query(ctx, `SELECT `+alertColumns+` FROM alert_records
WHERE subject_key = $1 AND status IN `+activeStatuses+` ORDER BY id`, subjectKey)
}

func (s *PostgresStore) ListQuiet(ctx context.Context, cutoff time.Time, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = constants.DefaultLimit
	}
	return s.query(ctx, `SELECT `+alertColumns+` FROM alert_records
WHERE status IN `+activeStatuses+` AND last_seen_at < $1 ORDER BY last_seen_at LIMIT $2`, cutoff, limit)
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]models.AlertRecord, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.SubjectKey != "" {
		add("subject_key = $%d", f.SubjectKey)
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = constants.DefaultLimit
	}
	if limit > constants.MaxLimit {
		limit = constants.MaxLimit
	}
	args = append(args, limit)

	q := `SELECT ` + alertColumns + ` FROM alert_records`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))

	return s.query(ctx, q, args...)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...interface{}) ([]models.AlertRecord, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	s.observe("select", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert records: %w", err)
	}
	defer rows.Close()

	out := make([]models.AlertRecord, 0)
	for rows.Next() {
		var (
			r                                models.AlertRecord
			severity, status                 string
			snoozeUntil, ackedAt, resolvedAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.SubjectKey, &severity, &status, &snoozeUntil, &r.EscalationLevel,
			&ackedAt, &r.LastEscalatedAt, &resolvedAt, &r.ResolveReason, &r.CreatedAt, &r.LastSeenAt, &r.Version); err != nil {
			return nil, fmt.Errorf("failed to scan alert record: %w", err)
		}
		r.SeverityTier = models.Severity(severity)
		r.Status = models.AlertStatus(status)
		r.SnoozeUntil = nullTime(snoozeUntil)
		r.AcknowledgedAt = nullTime(ackedAt)
		r.ResolvedAt = nullTime(resolvedAt)
		r.Fingerprint = models.NewFingerprint(r.SubjectKey, r.SeverityTier).String()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.IncDatabaseQuery(s.service, "postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration(s.service, "postgres", operation, time.Since(start))
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
