package models

import (
	"fmt"
	"strings"
	"time"
)

type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarning  Severity = "WARNING"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities; higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// AlertWorthy is true for every tier above OK.
func (s Severity) AlertWorthy() bool {
	return s.Rank() > 0
}

// Next returns the tier one step more urgent, saturating at CRITICAL.
func (s Severity) Next() Severity {
	switch s {
	case SeverityOK:
		return SeverityWarning
	case SeverityWarning:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToUpper(s)) {
	case SeverityOK:
		return SeverityOK, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityCritical:
		return SeverityCritical, nil
	}
	return "", fmt.Errorf("unknown severity: %q", s)
}

// CurrentState is the latest known state of one subject.
type CurrentState struct {
	SubjectKey         string                 `json:"subject_key"`
	LastEventTime      time.Time              `json:"last_event_time"`
	Fields             map[string]interface{} `json:"fields"`
	Severity           Severity               `json:"severity"`
	EnrichmentDegraded bool                   `json:"enrichment_degraded"`
	LastIdempotencyKey string                 `json:"last_idempotency_key"`
	Version            int64                  `json:"version"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// StateUpdate is what a processed event asks the state store to apply.
type StateUpdate struct {
	SubjectKey         string
	EventTime          time.Time
	Fields             map[string]interface{}
	Severity           Severity
	EnrichmentDegraded bool
	IdempotencyKey     string
}
