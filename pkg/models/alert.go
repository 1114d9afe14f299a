package models

import (
	"fmt"
	"strings"
	"time"
)

type AlertStatus string

const (
	AlertStatusQueued    AlertStatus = "queued"
	AlertStatusDelivered AlertStatus = "delivered"
	AlertStatusSnoozed   AlertStatus = "snoozed"
	AlertStatusResolved  AlertStatus = "resolved"
)

// Active statuses are the ones that count toward the one-per-fingerprint limit.
func (s AlertStatus) Active() bool {
	return s == AlertStatusQueued || s == AlertStatusDelivered || s == AlertStatusSnoozed
}

// ActiveAlertStatuses lists the statuses for which Active is true.
var ActiveAlertStatuses = []AlertStatus{AlertStatusQueued, AlertStatusDelivered, AlertStatusSnoozed}

// Fingerprint identifies an alert: one subject at one severity tier.
type Fingerprint struct {
	SubjectKey string
	Severity   Severity
}

func NewFingerprint(subjectKey string, severity Severity) Fingerprint {
	return Fingerprint{SubjectKey: subjectKey, Severity: severity}
}

func (f Fingerprint) String() string {
	return f.SubjectKey + "|" + string(f.Severity)
}

// ParseFingerprint is the inverse of Fingerprint.String. The subject key may
// itself contain '|', so the severity is taken from the last separator.
func ParseFingerprint(s string) (Fingerprint, error) {
	i := strings.LastIndex(s, "|")
	if i <= 0 || i == len(s)-1 {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint: %q", s)
	}
	sev, err := ParseSeverity(s[i+1:])
	if err != nil {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return Fingerprint{SubjectKey: s[:i], Severity: sev}, nil
}

type AlertRecord struct {
	ID              int64       `json:"id"`
	Fingerprint     string      `json:"fingerprint"`
	SubjectKey      string      `json:"subject_key"`
	SeverityTier    Severity    `json:"severity_tier"`
	Status          AlertStatus `json:"status"`
	SnoozeUntil     *time.Time  `json:"snooze_until,omitempty"`
	EscalationLevel int         `json:"escalation_level"`
	AcknowledgedAt  *time.Time  `json:"acknowledged_at,omitempty"`
	LastEscalatedAt time.Time   `json:"last_escalated_at"`
	ResolvedAt      *time.Time  `json:"resolved_at,omitempty"`
	ResolveReason   string      `json:"resolve_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	LastSeenAt      time.Time   `json:"last_seen_at"`
	Version         int64       `json:"version"`
}

// AlertEvent is what goes out on the alert feed. Consumers dedupe on
// (fingerprint, status, timestamp).
type AlertEvent struct {
	ID              string      `json:"id"`
	RecordID        int64       `json:"record_id"`
	Fingerprint     string      `json:"fingerprint"`
	SubjectKey      string      `json:"subject_key"`
	SeverityTier    Severity    `json:"severity_tier"`
	Urgency         Severity    `json:"urgency"`
	Status          AlertStatus `json:"status"`
	EscalationLevel int         `json:"escalation_level"`
	Reason          string      `json:"reason,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
}

const (
	ResolveReasonRecovered  = "recovered"
	ResolveReasonQuiet      = "quiet_period"
	ResolveReasonSuperseded = "superseded"
)
