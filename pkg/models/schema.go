package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateNotification(n *ChangeNotification) error {
	if n == nil {
		return &ValidationError{
			Field:   "body",
			Message: "notification cannot be nil",
		}
	}

	if n.ResolveSubjectKey() == "" {
		return &ValidationError{
			Field:   "subject_key",
			Message: "one of subject_key, asin or sku is required",
		}
	}

	if n.EventTime.IsZero() {
		return &ValidationError{
			Field:   "event_time",
			Message: "event time is required",
		}
	}

	if n.CompetitorCount < 0 {
		return &ValidationError{
			Field:   "competitor_count",
			Message: "competitor count must be non-negative",
		}
	}

	if n.OurPrice < 0 || n.LowestCompetitorPrice < 0 {
		return &ValidationError{
			Field:   "our_price",
			Message: "prices must be non-negative",
		}
	}

	return nil
}
