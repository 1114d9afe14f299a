// Package alerting owns the alert lifecycle: one active record per
// (subject, severity tier), moved through queued, delivered, snoozed and
// resolved, with escalation and quiet-period resolution.
package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

// maxCASAttempts bounds re-reads when a concurrent writer (emitter,
// sweeper, operator) changes a record between read and update.
const maxCASAttempts = 3

// Emitter hands alert events to the outbound feed. It must not block.
type Emitter interface {
	Emit(ev models.AlertEvent)
}

type Manager struct {
	store   Store
	emitter Emitter
	cfg     config.AlertingConfig
	logger  logger.Logger
	now     func() time.Time
}

func NewManager(store Store, emitter Emitter, cfg config.AlertingConfig, log logger.Logger) *Manager {
	return &Manager{
		store:   store,
		emitter: emitter,
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
	}
}

func (m *Manager) Store() Store {
	return m.store
}

// Observe applies one classification of subjectKey. OK resolves every
// active tier as recovered. Any other tier resolves the subject's other
// active tiers as superseded, then creates or refreshes the record for
// this tier. Emitted events are returned for logging and tests.
func (m *Manager) Observe(ctx context.Context, subjectKey string, severity models.Severity) ([]models.AlertEvent, error) {
	active, err := m.store.ListActiveBySubject(ctx, subjectKey)
	if err != nil {
		return nil, err
	}

	var events []models.AlertEvent
	var current *models.AlertRecord

	for i := range active {
		rec := active[i]
		if rec.SeverityTier == severity {
			current = &rec
			continue
		}
		reason := models.ResolveReasonRecovered
		if severity.AlertWorthy() {
			reason = models.ResolveReasonSuperseded
		}
		ev, err := m.resolve(ctx, rec, reason)
		if err != nil {
			return events, err
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}

	if !severity.AlertWorthy() {
		return events, nil
	}

	if current == nil {
		ev, err := m.create(ctx, subjectKey, severity)
		if err != nil {
			return events, err
		}
		if ev != nil {
			events = append(events, *ev)
		}
		return events, nil
	}

	ev, err := m.recur(ctx, *current)
	if err != nil {
		return events, err
	}
	if ev != nil {
		events = append(events, *ev)
	}
	return events, nil
}

func (m *Manager) create(ctx context.Context, subjectKey string, severity models.Severity) (*models.AlertEvent, error) {
	now := m.now()
	rec := models.AlertRecord{
		SubjectKey:      subjectKey,
		SeverityTier:    severity,
		Status:          models.AlertStatusQueued,
		LastEscalatedAt: now,
		CreatedAt:       now,
		LastSeenAt:      now,
	}

	err := m.store.Create(ctx, &rec)
	if errors.Is(err, apperrors.ErrConflict) {
		// Lost a race with another writer; treat this as a recurrence.
		existing, err := m.findActive(ctx, subjectKey, severity)
		if err != nil {
			return nil, err
		}
		return m.recur(ctx, existing)
	}
	if err != nil {
		return nil, err
	}

	ev := m.event(rec, "")
	return &ev, nil
}

// recur records another occurrence on an active record. It may re-queue a
// snoozed record whose snooze expired, re-notify a delivered record after
// a silence longer than the dedup window, or escalate an unacknowledged
// record that has stayed up for the escalation window.
func (m *Manager) recur(ctx context.Context, rec models.AlertRecord) (*models.AlertEvent, error) {
	for attempt := 1; ; attempt++ {
		now := m.now()
		next := rec
		next.LastSeenAt = now
		reason := ""

		switch {
		case rec.Status == models.AlertStatusSnoozed:
			if rec.SnoozeUntil != nil && !now.Before(*rec.SnoozeUntil) {
				next.Status = models.AlertStatusQueued
				next.SnoozeUntil = nil
				reason = "snooze_expired"
			}
		case m.shouldEscalate(rec, now):
			next.EscalationLevel++
			next.LastEscalatedAt = now
			next.Status = models.AlertStatusQueued
			reason = "escalated"
		case rec.Status == models.AlertStatusDelivered && now.Sub(rec.LastSeenAt) > m.cfg.DedupWindow:
			next.Status = models.AlertStatusQueued
			reason = "recurred"
		}

		err := m.store.Update(ctx, &next)
		if err == nil {
			if reason == "" {
				return nil, nil
			}
			ev := m.event(next, reason)
			return &ev, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) || attempt >= maxCASAttempts {
			return nil, err
		}

		fresh, err := m.findActive(ctx, rec.SubjectKey, rec.SeverityTier)
		if apperrors.IsNotFound(err) {
			// Resolved underneath us: this occurrence starts a new record.
			return m.create(ctx, rec.SubjectKey, rec.SeverityTier)
		}
		if err != nil {
			return nil, err
		}
		rec = fresh
	}
}

func (m *Manager) shouldEscalate(rec models.AlertRecord, now time.Time) bool {
	if rec.AcknowledgedAt != nil || m.cfg.EscalationWindow <= 0 {
		return false
	}
	if rec.EscalationLevel >= m.cfg.MaxEscalationLevel {
		return false
	}
	since := rec.CreatedAt
	if rec.LastEscalatedAt.After(since) {
		since = rec.LastEscalatedAt
	}
	return now.Sub(since) >= m.cfg.EscalationWindow
}

func (m *Manager) resolve(ctx context.Context, rec models.AlertRecord, reason string) (*models.AlertEvent, error) {
	for attempt := 1; ; attempt++ {
		now := m.now()
		next := rec
		next.Status = models.AlertStatusResolved
		next.ResolvedAt = &now
		next.ResolveReason = reason
		next.SnoozeUntil = nil

		err := m.store.Update(ctx, &next)
		if err == nil {
			ev := m.event(next, reason)
			return &ev, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) || attempt >= maxCASAttempts {
			return nil, err
		}

		fresh, err := m.findActive(ctx, rec.SubjectKey, rec.SeverityTier)
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		rec = fresh
	}
}

// Snooze silences the active record for fp until the given time.
func (m *Manager) Snooze(ctx context.Context, fp models.Fingerprint, until time.Time) (*models.AlertRecord, error) {
	if !until.After(m.now()) {
		return nil, apperrors.ErrValidation.WithDetail("message", "snooze time must be in the future")
	}
	return m.mutate(ctx, fp, "snoozed", func(rec *models.AlertRecord) {
		rec.Status = models.AlertStatusSnoozed
		rec.SnoozeUntil = &until
	})
}

// Acknowledge records operator acknowledgement, which stops escalation.
func (m *Manager) Acknowledge(ctx context.Context, fp models.Fingerprint) (*models.AlertRecord, error) {
	return m.mutate(ctx, fp, "", func(rec *models.AlertRecord) {
		if rec.AcknowledgedAt == nil {
			now := m.now()
			rec.AcknowledgedAt = &now
		}
	})
}

func (m *Manager) mutate(ctx context.Context, fp models.Fingerprint, reason string, apply func(*models.AlertRecord)) (*models.AlertRecord, error) {
	for attempt := 1; ; attempt++ {
		rec, err := m.findActive(ctx, fp.SubjectKey, fp.Severity)
		if err != nil {
			return nil, err
		}
		apply(&rec)

		err = m.store.Update(ctx, &rec)
		if err == nil {
			if reason != "" {
				m.event(rec, reason)
			}
			return &rec, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) || attempt >= maxCASAttempts {
			return nil, err
		}
	}
}

// SweepQuiet resolves active records with no occurrence for the quiet
// period. It returns the number resolved.
func (m *Manager) SweepQuiet(ctx context.Context) (int, error) {
	if m.cfg.QuietPeriod <= 0 {
		return 0, nil
	}
	cutoff := m.now().Add(-m.cfg.QuietPeriod)

	resolved := 0
	for {
		batch, err := m.store.ListQuiet(ctx, cutoff, 100)
		if err != nil {
			return resolved, err
		}
		if len(batch) == 0 {
			return resolved, nil
		}
		progress := false
		for _, rec := range batch {
			ev, err := m.resolve(ctx, rec, models.ResolveReasonQuiet)
			if err != nil {
				return resolved, err
			}
			if ev != nil {
				resolved++
				progress = true
			}
		}
		if !progress || len(batch) < 100 {
			return resolved, nil
		}
	}
}

// MarkDelivered is called by the emitter once an event for a queued
// record has been published.
func (m *Manager) MarkDelivered(ctx context.Context, recordID int64) error {
	_, err := m.store.MarkDelivered(ctx, recordID)
	return err
}

func (m *Manager) findActive(ctx context.Context, subjectKey string, severity models.Severity) (models.AlertRecord, error) {
	active, err := m.store.ListActiveBySubject(ctx, subjectKey)
	if err != nil {
		return models.AlertRecord{}, err
	}
	for _, rec := range active {
		if rec.SeverityTier == severity {
			return rec, nil
		}
	}
	return models.AlertRecord{}, apperrors.ErrNotFound.WithDetail("fingerprint", models.NewFingerprint(subjectKey, severity).String())
}

// event builds the outbound event for rec and hands it to the emitter.
func (m *Manager) event(rec models.AlertRecord, reason string) models.AlertEvent {
	ev := models.AlertEvent{
		ID:              uuid.NewString(),
		RecordID:        rec.ID,
		Fingerprint:     models.NewFingerprint(rec.SubjectKey, rec.SeverityTier).String(),
		SubjectKey:      rec.SubjectKey,
		SeverityTier:    rec.SeverityTier,
		Urgency:         urgency(rec.SeverityTier, rec.EscalationLevel),
		Status:          rec.Status,
		EscalationLevel: rec.EscalationLevel,
		Reason:          reason,
		Timestamp:       m.now(),
	}

	metrics.AlertTransitionsTotal.WithLabelValues(string(rec.SeverityTier), string(rec.Status)).Inc()
	m.logger.Infow("Alert transition",
		"fingerprint", ev.Fingerprint,
		"status", ev.Status,
		"escalation_level", ev.EscalationLevel,
		"reason", reason,
	)

	if m.emitter != nil {
		m.emitter.Emit(ev)
	}
	return ev
}

// urgency is the tier raised once per escalation level, capped at CRITICAL.
func urgency(tier models.Severity, level int) models.Severity {
	u := tier
	for i := 0; i < level; i++ {
		u = u.Next()
	}
	return u
}
