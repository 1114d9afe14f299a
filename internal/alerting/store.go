package alerting

import (
	"context"
	"time"

	"pricewatch/pkg/models"
)

type ListFilter struct {
	SubjectKey string
	Severity   models.Severity
	Status     models.AlertStatus
	Limit      int
}

// Store persists alert records. At most one active record exists per
// fingerprint: Create reports errors.ErrConflict when one already does.
// Update is a compare-and-swap on (ID, Version): it stores rec only if the
// persisted version still equals rec.Version, then bumps rec.Version. It
// reports errors.ErrConflict when any write landed in between.
type Store interface {
	Create(ctx context.Context, rec *models.AlertRecord) error
	Update(ctx context.Context, rec *models.AlertRecord) error
	// MarkDelivered moves a queued record to delivered. It reports false
	// when the record is no longer queued.
	MarkDelivered(ctx context.Context, id int64) (bool, error)
	ListActiveBySubject(ctx context.Context, subjectKey string) ([]models.AlertRecord, error)
	// ListQuiet returns active records last seen before cutoff, oldest first.
	ListQuiet(ctx context.Context, cutoff time.Time, limit int) ([]models.AlertRecord, error)
	// List returns records newest first.
	List(ctx context.Context, filter ListFilter) ([]models.AlertRecord, error)
}
