package provider

import (
	"context"

	"pricewatch/pkg/models"
)

// Provider fetches enrichment data for one subject. A missing subject is
// reported as errors.ErrNotFound; upstream trouble as THROTTLED, SERVER_ERROR
// or TIMEOUT so the resilience layer can tell them apart.
type Provider interface {
	Fetch(ctx context.Context, subjectKey string) (*models.EnrichmentData, error)
	Name() string
}
