// Package ingest turns raw queue deliveries into normalized events. It owns
// the terminal outcomes (malformed, poison, duplicate, filtered), recording
// failures and acknowledging those messages itself. Only events go onward.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"pricewatch/internal/config"
	"pricewatch/internal/failures"
	"pricewatch/internal/idempotency"
	"pricewatch/internal/logger"
	"pricewatch/internal/queue"
	"pricewatch/pkg/cel"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/logging"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

type Outcome string

const (
	OutcomeEvent     Outcome = "event"
	OutcomeMalformed Outcome = "malformed"
	OutcomePoison    Outcome = "poison"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFiltered  Outcome = "filtered"
)

// Result is what Ingest decided for one message. Event is set only for
// OutcomeEvent; every other outcome has already been acknowledged.
type Result struct {
	Outcome Outcome
	Event   *models.NormalizedEvent
	Message models.InboundMessage
}

type Ingestor struct {
	queue       queue.Queue
	idempotency *idempotency.Cache
	recorder    *failures.Recorder
	schema      *jsonschema.Schema
	filters     []*cel.Filter
	cfg         config.QueueConfig
	logger      logger.Logger
}

func NewIngestor(
	q queue.Queue,
	idem *idempotency.Cache,
	recorder *failures.Recorder,
	queueCfg config.QueueConfig,
	ingestCfg config.IngestConfig,
	log logger.Logger,
) (*Ingestor, error) {
	in := &Ingestor{
		queue:       q,
		idempotency: idem,
		recorder:    recorder,
		cfg:         queueCfg,
		logger:      log,
	}

	if ingestCfg.SchemaValidation {
		schema, err := compileSchema()
		if err != nil {
			return nil, err
		}
		in.schema = schema
	}

	if len(ingestCfg.Filters) > 0 {
		evaluator, err := cel.NewEvaluator()
		if err != nil {
			return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
		}
		for _, expr := range ingestCfg.Filters {
			f, err := evaluator.CompileFilter(expr)
			if err != nil {
				return nil, fmt.Errorf("invalid ingest filter %q: %w", expr, err)
			}
			in.filters = append(in.filters, f)
		}
	}

	return in, nil
}

// Poll long-polls one batch from the queue.
func (in *Ingestor) Poll(ctx context.Context) ([]models.InboundMessage, error) {
	return in.queue.Poll(ctx, in.cfg.BatchSize, in.cfg.WaitTime)
}

// VisibilityTimeout is how long a polled message stays claimed before the
// queue hands it out again.
func (in *Ingestor) VisibilityTimeout() time.Duration {
	return in.cfg.VisibilityTimeout
}

// Ingest classifies msg. An error means the message must be left for
// redelivery: the failure record could not be written, or the idempotency
// cache failed with on_cache_error=fail.
func (in *Ingestor) Ingest(ctx context.Context, msg models.InboundMessage) (Result, error) {
	ctx = logging.WithMessageID(ctx, msg.ID)
	res := Result{Message: msg}

	if in.cfg.MaxReceives > 0 && msg.ReceiveCount > in.cfg.MaxReceives {
		res.Outcome = OutcomePoison
		cause := apperrors.ErrPoison.WithCause(
			fmt.Errorf("receive count %d exceeds max receives %d", msg.ReceiveCount, in.cfg.MaxReceives))
		return res, in.reject(ctx, msg, models.ErrorKindPoison, cause)
	}

	event, err := in.parse(msg)
	if err != nil {
		res.Outcome = OutcomeMalformed
		return res, in.reject(ctx, msg, models.ErrorKindMalformed, err)
	}
	ctx = logging.WithSubjectKey(ctx, event.SubjectKey)

	applied, err := in.idempotency.Applied(ctx, event.IdempotencyKey)
	if err != nil {
		return res, err
	}
	if applied {
		res.Outcome = OutcomeDuplicate
		in.logger.InfowCtx(ctx, "Message already applied, skipping")
		in.finish(ctx, msg, OutcomeDuplicate)
		return res, nil
	}

	if !in.passesFilters(ctx, event) {
		res.Outcome = OutcomeFiltered
		in.logger.DebugwCtx(ctx, "Event filtered out",
			"event_type", event.EventType,
		)
		in.finish(ctx, msg, OutcomeFiltered)
		return res, nil
	}

	res.Outcome = OutcomeEvent
	res.Event = event
	return res, nil
}

// Commit records the event's idempotency key once its state is applied.
func (in *Ingestor) Commit(ctx context.Context, event *models.NormalizedEvent) {
	in.idempotency.Commit(ctx, event.IdempotencyKey)
}

// Acknowledge deletes msgs from the queue. Failures are logged and
// counted; the messages come back after the visibility timeout and are
// caught by the idempotency check.
func (in *Ingestor) Acknowledge(ctx context.Context, msgs ...models.InboundMessage) {
	if len(msgs) == 0 {
		return
	}
	tokens := make([]string, 0, len(msgs))
	for _, m := range msgs {
		tokens = append(tokens, m.ReceiptToken)
	}
	if err := in.queue.Acknowledge(ctx, tokens...); err != nil {
		metrics.QueueAckFailuresTotal.WithLabelValues(msgs[0].Stream).Add(float64(len(msgs)))
		in.logger.WarnwCtx(ctx, "Failed to acknowledge messages",
			"error", err,
			"count", len(msgs),
		)
	}
}

func (in *Ingestor) parse(msg models.InboundMessage) (*models.NormalizedEvent, error) {
	if in.schema != nil {
		if err := validateBody(in.schema, msg.Body); err != nil {
			return nil, apperrors.ErrMalformed.WithCause(err)
		}
	}

	var n models.ChangeNotification
	if err := json.Unmarshal(msg.Body, &n); err != nil {
		return nil, apperrors.ErrMalformed.WithCause(err)
	}
	if err := models.ValidateNotification(&n); err != nil {
		return nil, apperrors.ErrMalformed.WithCause(err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(msg.Body, &raw); err != nil {
		return nil, apperrors.ErrMalformed.WithCause(err)
	}

	return &models.NormalizedEvent{
		MessageID:      msg.ID,
		SubjectKey:     n.ResolveSubjectKey(),
		EventType:      n.EventType,
		EventTime:      n.EventTime.UTC(),
		Payload:        n,
		Raw:            raw,
		IdempotencyKey: in.idempotency.Key(msg.ID, msg.Body),
	}, nil
}

// passesFilters requires every filter to match. A filter that fails to
// evaluate is skipped, so a bad expression never drops events.
func (in *Ingestor) passesFilters(ctx context.Context, event *models.NormalizedEvent) bool {
	for _, f := range in.filters {
		ok, err := f.Match(ctx, event)
		if err != nil {
			in.logger.WarnwCtx(ctx, "Filter evaluation error, allowing event",
				"expression", f.Expression,
				"error", err,
			)
			continue
		}
		if !ok {
			return false
		}
	}
	return true
}

// reject records a terminal failure and acknowledges msg. If the record
// cannot be written the message stays on the queue.
func (in *Ingestor) reject(ctx context.Context, msg models.InboundMessage, kind models.ErrorKind, cause error) error {
	if _, err := in.recorder.Record(ctx, msg, kind, cause); err != nil {
		return fmt.Errorf("failed to record %s message: %w", kind, err)
	}
	outcome := OutcomeMalformed
	if kind == models.ErrorKindPoison {
		outcome = OutcomePoison
	}
	in.finish(ctx, msg, outcome)
	return nil
}

func (in *Ingestor) finish(ctx context.Context, msg models.InboundMessage, outcome Outcome) {
	in.Acknowledge(ctx, msg)
	metrics.IncIngestOutcome(string(outcome))
	if !msg.EnqueuedAt.IsZero() {
		metrics.ObserveIngestDuration(string(outcome), time.Since(msg.EnqueuedAt))
	}
}
