// Package state keeps the latest known CurrentState per subject.
package state

import (
	"context"

	"pricewatch/pkg/models"
)

// Outcome of an upsert.
type Outcome string

const (
	// Applied: the row was created or replaced.
	Applied Outcome = "applied"
	// Stale: the stored state has a newer event time; nothing changed.
	Stale Outcome = "stale"
	// Duplicate: the stored state was produced by the same idempotency key.
	Duplicate Outcome = "duplicate"
)

// Store applies updates atomically per subject. An update never moves
// LastEventTime backwards and is a no-op when the stored row was last
// written by the same idempotency key.
type Store interface {
	Upsert(ctx context.Context, upd models.StateUpdate) (Outcome, *models.CurrentState, error)
	// Get returns errors.ErrNotFound for an unknown subject.
	Get(ctx context.Context, subjectKey string) (*models.CurrentState, error)
}
