package models

import "time"

type ErrorKind string

const (
	ErrorKindMalformed ErrorKind = "MALFORMED"
	ErrorKindPoison    ErrorKind = "POISON"
	ErrorKindTimeout   ErrorKind = "TIMEOUT"
)

// FailureRecord is an append-only audit entry for anything that left the
// normal processing path.
type FailureRecord struct {
	ID                string    `json:"id" bson:"_id"`
	OriginalMessageID string    `json:"original_message_id" bson:"original_message_id"`
	ErrorKind         ErrorKind `json:"error_kind" bson:"error_kind"`
	Detail            string    `json:"detail,omitempty" bson:"detail,omitempty"`
	OccurredAt        time.Time `json:"occurred_at" bson:"occurred_at"`
	AttemptCount      int       `json:"attempt_count" bson:"attempt_count"`
	RawPayload        []byte    `json:"raw_payload" bson:"raw_payload"`
}
