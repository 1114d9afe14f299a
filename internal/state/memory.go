package state

import (
	"context"
	"sync"
	"time"

	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/models"
)

// MemoryStore mirrors PostgresStore semantics under a mutex. Returned
// states are copies.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]models.CurrentState
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]models.CurrentState),
		now:    time.Now,
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, upd models.StateUpdate) (Outcome, *models.CurrentState, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.states[upd.SubjectKey]
	if exists {
		if current.LastIdempotencyKey == upd.IdempotencyKey {
			return Duplicate, cloneState(current), nil
		}
		if upd.EventTime.Before(current.LastEventTime) {
			return Stale, cloneState(current), nil
		}
	}

	next := models.CurrentState{
		SubjectKey:         upd.SubjectKey,
		LastEventTime:      upd.EventTime,
		Fields:             cloneFields(upd.Fields),
		Severity:           upd.Severity,
		EnrichmentDegraded: upd.EnrichmentDegraded,
		LastIdempotencyKey: upd.IdempotencyKey,
		Version:            current.Version + 1,
		UpdatedAt:          s.now(),
	}
	s.states[upd.SubjectKey] = next
	return Applied, cloneState(next), nil
}

func (s *MemoryStore) Get(ctx context.Context, subjectKey string) (*models.CurrentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[subjectKey]
	if !ok {
		return nil, apperrors.ErrNotFound.WithDetail("subject_key", subjectKey)
	}
	return cloneState(st), nil
}

// Len is the number of subjects stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func cloneState(st models.CurrentState) *models.CurrentState {
	st.Fields = cloneFields(st.Fields)
	return &st
}

func cloneFields(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
