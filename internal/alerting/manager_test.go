package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/models"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.AlertEvent
}

func (r *recordingEmitter) Emit(ev models.AlertEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) all() []models.AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AlertEvent(nil), r.events...)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *recordingEmitter, *clock) {
	t.Helper()
	store := NewMemoryStore()
	em := &recordingEmitter{}
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(store, em, config.DefaultAlertingConfig(), logger.NopLogger())
	m.now = clk.now
	return m, store, em, clk
}

func active(t *testing.T, s Store, subject string) []models.AlertRecord {
	t.Helper()
	recs, err := s.ListActiveBySubject(context.Background(), subject)
	require.NoError(t, err)
	return recs
}

func TestManager_CreateQueued(t *testing.T) {
	m, store, em, _ := newTestManager(t)

	events, err := m.Observe(context.Background(), "B1", models.SeverityCritical)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.AlertStatusQueued, events[0].Status)
	assert.Equal(t, "B1|CRITICAL", events[0].Fingerprint)
	assert.NotEmpty(t, events[0].ID)

	recs := active(t, store, "B1")
	require.Len(t, recs, 1)
	assert.Equal(t, models.AlertStatusQueued, recs[0].Status)
	assert.Len(t, em.all(), 1)
}

func TestManager_OKWithoutActiveDoesNothing(t *testing.T) {
	m, store, em, _ := newTestManager(t)

	events, err := m.Observe(context.Background(), "B1", models.SeverityOK)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, active(t, store, "B1"))
	assert.Empty(t, em.all())
}

func TestManager_DedupWithinWindow(t *testing.T) {
	m, store, em, clk := newTestManager(t)
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityCritical)
	require.NoError(t, err)
	first := active(t, store, "B1")[0]

	clk.advance(5 * time.Minute)
	events, err := m.Observe(ctx, "B1", models.SeverityCritical)
	require.NoError(t, err)
	assert.Empty(t, events)

	recs := active(t, store, "B1")
	require.Len(t, recs, 1)
	assert.Equal(t, first.ID, recs[0].ID)
	assert.True(t, recs[0].LastSeenAt.After(first.LastSeenAt))
	assert.Equal(t, 0, recs[0].EscalationLevel)
	assert.Len(t, em.all(), 1)
}

func TestManager_ResolveOnOK(t *testing.T) {
	m, store, _, clk := newTestManager(t)
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)

	clk.advance(time.Minute)
	events, err := m.Observe(ctx, "B1", models.SeverityOK)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.AlertStatusResolved, events[0].Status)
	assert.Equal(t, models.ResolveReasonRecovered, events[0].Reason)
	assert.Empty(t, active(t, store, "B1"))

	all, err := store.List(ctx, ListFilter{SubjectKey: "B1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.AlertStatusResolved, all[0].Status)
	require.NotNil(t, all[0].ResolvedAt)
}

func TestManager_TierChangeSupersedes(t *testing.T) {
	m, store, _, clk := newTestManager(t)
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)

	clk.advance(time.Minute)
	events, err := m.Observe(ctx, "B1", models.SeverityCritical)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AlertStatusResolved, events[0].Status)
	assert.Equal(t, models.ResolveReasonSuperseded, events[0].Reason)
	assert.Equal(t, models.SeverityHigh, events[0].SeverityTier)
	assert.Equal(t, models.AlertStatusQueued, events[1].Status)
	assert.Equal(t, models.SeverityCritical, events[1].SeverityTier)

	recs := active(t, store, "B1")
	require.Len(t, recs, 1)
	assert.Equal(t, models.SeverityCritical, recs[0].SeverityTier)
}

func TestManager_EscalatesUnacknowledged(t *testing.T) {
	m, store, _, clk := newTestManager(t)
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityWarning)
	require.NoError(t, err)

	level := 0
	for i := 0; i < 5; i++ {
		clk.advance(31 * time.Minute)
		events, err := m.Observe(ctx, "B1", models.SeverityWarning)
		require.NoError(t, err)
		if level < 3 {
			level++
			require.Len(t, events, 1)
			assert.Equal(t, "escalated", events[0].Reason)
			assert.Equal(t, level, events[0].EscalationLevel)
		} else {
			assert.Empty(t, events, "capped at max escalation level")
		}
	}

	rec := active(t, store, "B1")[0]
	assert.Equal(t, 3, rec.EscalationLevel)
	assert.Equal(t, models.AlertStatusQueued, rec.Status)
}

func TestManager_EscalationUrgency(t *testing.T) {
	m, _, _, clk := newTestManager(t)
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityWarning)
	require.NoError(t, err)

	clk.advance(30 * time.Minute)
	events, err := m.Observe(ctx, "B1", models.SeverityWarning)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.SeverityWarning, events[0].SeverityTier)
	assert.Equal(t, models.SeverityHigh, events[0].Urgency)
}

func TestManager_AcknowledgedDoesNotEscalate(t *testing.T) {
	m, store, _, clk := newTestManager(t)
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)

	rec, err := m.Acknowledge(ctx, models.NewFingerprint("B1", models.SeverityHigh))
	require.NoError(t, err)
	require.NotNil(t, rec.AcknowledgedAt)

	clk.advance(2 * time.Hour)
	events, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, active(t, store, "B1")[0].EscalationLevel)
}

func TestManager_SnoozeLifecycle(t *testing.T) {
	m, store, _, clk := newTestManager(t)
	ctx := context.Background()
	fp := models.NewFingerprint("B1", models.SeverityHigh)

	_, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)

	_, err = m.Snooze(ctx, fp, clk.now().Add(-time.Minute))
	assert.True(t, apperrors.IsValidation(err))

	rec, err := m.Snooze(ctx, fp, clk.now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusSnoozed, rec.Status)

	clk.advance(45 * time.Minute)
	events, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)
	assert.Empty(t, events, "still snoozed, no escalation")
	assert.Equal(t, models.AlertStatusSnoozed, active(t, store, "B1")[0].Status)

	clk.advance(30 * time.Minute)
	events, err = m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "snooze_expired", events[0].Reason)
	assert.Equal(t, models.AlertStatusQueued, events[0].Status)
	assert.Nil(t, active(t, store, "B1")[0].SnoozeUntil)
}

func TestManager_SnoozeUnknownFingerprint(t *testing.T) {
	m, _, _, clk := newTestManager(t)
	_, err := m.Snooze(context.Background(), models.NewFingerprint("nope", models.SeverityHigh), clk.now().Add(time.Hour))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestManager_RecurrenceAfterDedupWindowRenotifies(t *testing.T) {
	m, store, _, clk := newTestManager(t)
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)
	rec := active(t, store, "B1")[0]
	require.NoError(t, m.MarkDelivered(ctx, rec.ID))

	_, err = m.Acknowledge(ctx, models.NewFingerprint("B1", models.SeverityHigh))
	require.NoError(t, err)

	clk.advance(20 * time.Minute)
	events, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "recurred", events[0].Reason)
	assert.Equal(t, models.AlertStatusQueued, events[0].Status)
	assert.Len(t, active(t, store, "B1"), 1)
}

func TestManager_SweepQuiet(t *testing.T) {
	m, store, _, clk := newTestManager(t)
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)
	clk.advance(5 * time.Hour)
	_, err = m.Observe(ctx, "B2", models.SeverityWarning)
	require.NoError(t, err)

	clk.advance(90 * time.Minute)
	n, err := m.SweepQuiet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Empty(t, active(t, store, "B1"))
	assert.Len(t, active(t, store, "B2"), 1)

	all, err := store.List(ctx, ListFilter{SubjectKey: "B1"})
	require.NoError(t, err)
	assert.Equal(t, models.ResolveReasonQuiet, all[0].ResolveReason)
}

// racingStore flips the record to delivered right before the manager's
// first update, the way the emitter can.
type racingStore struct {
	*MemoryStore
	raced bool
}

func (s *racingStore) Update(ctx context.Context, rec *models.AlertRecord) error {
	if !s.raced {
		s.raced = true
		if _, err := s.MemoryStore.MarkDelivered(ctx, rec.ID); err != nil {
			return err
		}
	}
	return s.MemoryStore.Update(ctx, rec)
}

func TestManager_RetriesAfterConcurrentUpdate(t *testing.T) {
	mem := NewMemoryStore()
	store := &racingStore{MemoryStore: mem, raced: true}
	m := NewManager(store, nil, config.DefaultAlertingConfig(), logger.NopLogger())
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)

	store.raced = false
	_, err = m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)

	recs := active(t, mem, "B1")
	require.Len(t, recs, 1)
	assert.Equal(t, models.AlertStatusDelivered, recs[0].Status, "the concurrent delivery is kept")
}

// interleavingStore runs before ahead of the next update, once.
type interleavingStore struct {
	*MemoryStore
	before func()
}

func (s *interleavingStore) Update(ctx context.Context, rec *models.AlertRecord) error {
	if f := s.before; f != nil {
		s.before = nil
		f()
	}
	return s.MemoryStore.Update(ctx, rec)
}

func TestManager_RecurrenceKeepsConcurrentAcknowledgement(t *testing.T) {
	mem := NewMemoryStore()
	store := &interleavingStore{MemoryStore: mem}
	em := &recordingEmitter{}
	clk := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	cfg := config.DefaultAlertingConfig()

	m := NewManager(store, em, cfg, logger.NopLogger())
	m.now = clk.now
	operator := NewManager(mem, nil, cfg, logger.NopLogger())
	operator.now = clk.now
	ctx := context.Background()

	_, err := m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)

	clk.advance(time.Minute)
	store.before = func() {
		_, err := operator.Acknowledge(ctx, models.NewFingerprint("B1", models.SeverityHigh))
		require.NoError(t, err)
	}
	_, err = m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)

	recs := active(t, mem, "B1")
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].AcknowledgedAt, "acknowledgement written between read and update survives")

	clk.advance(cfg.EscalationWindow + time.Minute)
	_, err = m.Observe(ctx, "B1", models.SeverityHigh)
	require.NoError(t, err)

	recs = active(t, mem, "B1")
	require.Len(t, recs, 1)
	assert.Zero(t, recs[0].EscalationLevel)
	for _, ev := range em.all() {
		assert.NotEqual(t, "escalated", ev.Reason)
	}
}

func TestMemoryStore_UpdateComparesVersion(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	rec := &models.AlertRecord{
		SubjectKey: "B1", SeverityTier: models.SeverityHigh, Status: models.AlertStatusQueued,
		CreatedAt: now, LastSeenAt: now, LastEscalatedAt: now,
	}
	require.NoError(t, store.Create(ctx, rec))
	stale := *rec

	require.NoError(t, store.Update(ctx, rec))
	assert.Equal(t, int64(1), rec.Version)

	stale.LastSeenAt = now.Add(time.Minute)
	assert.True(t, apperrors.IsConflict(store.Update(ctx, &stale)), "same status, older version")
	assert.Equal(t, int64(0), stale.Version)

	ok, err := store.MarkDelivered(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, apperrors.IsConflict(store.Update(ctx, rec)), "delivery bumps the version")
}

func TestManager_OneActivePerFingerprint(t *testing.T) {
	m, store, _, clk := newTestManager(t)
	ctx := context.Background()
	sequence := []models.Severity{
		models.SeverityHigh, models.SeverityHigh, models.SeverityCritical, models.SeverityOK,
		models.SeverityWarning, models.SeverityWarning, models.SeverityHigh, models.SeverityHigh,
	}

	for _, sev := range sequence {
		clk.advance(7 * time.Minute)
		_, err := m.Observe(ctx, "B1", sev)
		require.NoError(t, err)

		seen := map[models.Severity]int{}
		for _, r := range active(t, store, "B1") {
			seen[r.SeverityTier]++
		}
		for tier, n := range seen {
			assert.Equal(t, 1, n, "tier %s", tier)
		}
		assert.LessOrEqual(t, len(seen), 1)
	}
}

func TestUrgency(t *testing.T) {
	assert.Equal(t, models.SeverityWarning, urgency(models.SeverityWarning, 0))
	assert.Equal(t, models.SeverityHigh, urgency(models.SeverityWarning, 1))
	assert.Equal(t, models.SeverityCritical, urgency(models.SeverityWarning, 5))
}
