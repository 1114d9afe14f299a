package alerting

import (
	"context"
	"sort"
	"sync"
	"time"

	"pricewatch/internal/constants"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/models"
)

type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]models.AlertRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]models.AlertRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.Status.Active() && r.SubjectKey == rec.SubjectKey && r.SeverityTier == rec.SeverityTier {
			return apperrors.ErrConflict.WithDetail("fingerprint", rec.Fingerprint)
		}
	}

	s.nextID++
	rec.ID = s.nextID
	rec.Fingerprint = models.NewFingerprint(rec.SubjectKey, rec.SeverityTier).String()
	rec.Version = 0
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[rec.ID]
	if !ok {
		return apperrors.ErrNotFound.WithDetail("id", rec.ID)
	}
	if current.Version != rec.Version {
		return apperrors.ErrConflict.WithDetail("version", current.Version)
	}
	rec.Version++
	s.records[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != models.AlertStatusQueued {
		return false, nil
	}
	rec.Status = models.AlertStatusDelivered
	rec.Version++
	s.records[id] = rec
	return true, nil
}

func (s *MemoryStore) ListActiveBySubject(ctx context.Context, subjectKey string) ([]models.AlertRecord, error) {
	return s.collect(func(r models.AlertRecord) bool {
		return r.Status.Active() && r.SubjectKey == subjectKey
	}, 0, false), nil
}

func (s *MemoryStore) ListQuiet(ctx context.Context, cutoff time.Time, limit int) ([]models.AlertRecord, error) {
	out := s.collect(func(r models.AlertRecord) bool {
		return r.Status.Active() && r.LastSeenAt.Before(cutoff)
	}, 0, false)
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.Before(out[j].LastSeenAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]models.AlertRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = constants.DefaultLimit
	}
	return s.collect(func(r models.AlertRecord) bool {
		return (f.SubjectKey == "" || r.SubjectKey == f.SubjectKey) &&
			(f.Severity == "" || r.SeverityTier == f.Severity) &&
			(f.Status == "" || r.Status == f.Status)
	}, limit, true), nil
}

// collect returns matching records ordered by id, newest first when desc.
func (s *MemoryStore) collect(match func(models.AlertRecord) bool, limit int, desc bool) []models.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AlertRecord, 0)
	for _, r := range s.records {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
