package failures

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"pricewatch/internal/broker"
	"pricewatch/internal/logger"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

// Recorder writes failure records and mirrors them onto the dead-letter
// topic when one is configured. The store write is authoritative: its
// error is returned so the caller can leave the message for redelivery.
// The mirror is best-effort.
type Recorder struct {
	store    Store
	producer broker.Producer
	topic    string
	logger   logger.Logger
	now      func() time.Time
}

func NewRecorder(store Store, producer broker.Producer, deadLetterTopic string, log logger.Logger) *Recorder {
	return &Recorder{
		store:    store,
		producer: producer,
		topic:    deadLetterTopic,
		logger:   log,
		now:      time.Now,
	}
}

// Record stores a failure for msg. cause may be nil.
func (r *Recorder) Record(ctx context.Context, msg models.InboundMessage, kind models.ErrorKind, cause error) (models.FailureRecord, error) {
	rec := models.FailureRecord{
		ID:                ulid.Make().String(),
		OriginalMessageID: msg.ID,
		ErrorKind:         kind,
		OccurredAt:        r.now().UTC(),
		AttemptCount:      msg.ReceiveCount,
		RawPayload:        append([]byte(nil), msg.Body...),
	}
	if cause != nil {
		rec.Detail = cause.Error()
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		r.logger.ErrorwCtx(ctx, "Failed to store failure record",
			"error", err,
			"error_kind", kind,
		)
		return rec, err
	}
	metrics.IncFailureRecord(string(kind))

	r.logger.WarnwCtx(ctx, "Message recorded as failure",
		"error_kind", kind,
		"failure_id", rec.ID,
		"attempt_count", rec.AttemptCount,
		"detail", rec.Detail,
	)

	if r.producer != nil && r.topic != "" {
		if err := r.producer.Publish(ctx, r.topic, msg.ID, rec); err != nil {
			r.logger.WarnwCtx(ctx, "Failed to mirror failure record to dead-letter topic",
				"error", err,
				"failure_id", rec.ID,
			)
		}
	}
	return rec, nil
}
