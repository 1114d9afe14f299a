package models

import "time"

// EnrichmentData is cost and demand data for one subject, fetched from the
// enrichment collaborator. Nil pointers mean the source had no value.
type EnrichmentData struct {
	SubjectKey      string    `json:"subject_key" bson:"subject_key"`
	UnitCost        *float64  `json:"unit_cost,omitempty" bson:"unit_cost,omitempty"`
	Fees            *float64  `json:"fees,omitempty" bson:"fees,omitempty"`
	EstimatedVolume *float64  `json:"estimated_volume,omitempty" bson:"estimated_volume,omitempty"`
	MarginPct       *float64  `json:"margin_pct,omitempty" bson:"margin_pct,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty" bson:"updated_at,omitempty"`

	// RemainingQuota is the upstream's capacity hint for this call, in
	// requests per second. Not persisted.
	RemainingQuota *float64 `json:"-" bson:"-"`
}

// Margin returns the margin percentage at ourPrice. A stored margin wins;
// otherwise it is derived from unit cost and fees. ok is false when neither
// is available.
func (d *EnrichmentData) Margin(ourPrice float64) (pct float64, ok bool) {
	if d == nil {
		return 0, false
	}
	if d.MarginPct != nil {
		return *d.MarginPct, true
	}
	if d.UnitCost == nil || ourPrice <= 0 {
		return 0, false
	}
	fees := 0.0
	if d.Fees != nil {
		fees = *d.Fees
	}
	return (ourPrice - *d.UnitCost - fees) / ourPrice * 100, true
}
