package worker

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"pricewatch/internal/alerting"
	"pricewatch/internal/classifier"
	"pricewatch/internal/enrichment"
	"pricewatch/internal/logger"
	"pricewatch/internal/state"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
	"pricewatch/pkg/tracing"
)

// Pipeline runs one event through enrichment, classification, the state
// store and the alert lifecycle. It is called sequentially per partition.
type Pipeline struct {
	enricher   enrichment.Enricher
	classifier *classifier.Classifier
	states     state.Store
	alerts     *alerting.Manager
	logger     logger.Logger
}

// NewPipeline wires the stages. enricher may be nil, in which case events
// are classified without enrichment and are not marked degraded.
func NewPipeline(enricher enrichment.Enricher, c *classifier.Classifier, states state.Store, alerts *alerting.Manager, log logger.Logger) *Pipeline {
	return &Pipeline{
		enricher:   enricher,
		classifier: c,
		states:     states,
		alerts:     alerts,
		logger:     log,
	}
}

// Process applies ev. A nil error means the message may be acknowledged.
func (p *Pipeline) Process(ctx context.Context, ev *models.NormalizedEvent) (state.Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "worker.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("subject_key", ev.SubjectKey),
		attribute.String("message_id", ev.MessageID),
	)

	in := classifier.Input{Event: ev}
	if p.enricher != nil {
		r := p.enricher.Enrich(ctx, ev.SubjectKey)
		in.Enrichment = r.Data
		in.Degraded = r.Degraded
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	res := p.classifier.Classify(in)
	metrics.ClassificationsTotal.WithLabelValues(string(res.Severity), fmt.Sprint(res.EnrichmentDegraded)).Inc()
	span.SetAttributes(
		attribute.String("severity", string(res.Severity)),
		attribute.Bool("enrichment_degraded", res.EnrichmentDegraded),
	)
	p.logger.DebugwCtx(ctx, "Event classified",
		"severity", res.Severity,
		"rule", res.Rule,
		"reasons", res.Reasons,
		"enrichment_degraded", res.EnrichmentDegraded,
	)

	outcome, st, err := p.states.Upsert(ctx, models.StateUpdate{
		SubjectKey:         ev.SubjectKey,
		EventTime:          ev.EventTime,
		Fields:             ev.StateFields(),
		Severity:           res.Severity,
		EnrichmentDegraded: res.EnrichmentDegraded,
		IdempotencyKey:     ev.IdempotencyKey,
	})
	if err != nil {
		tracing.RecordError(span, err)
		return "", fmt.Errorf("state upsert failed: %w", err)
	}
	span.SetAttributes(attribute.String("state_outcome", string(outcome)))

	switch outcome {
	case state.Stale:
		p.logger.InfowCtx(ctx, "Event older than current state, not applied",
			"event_time", ev.EventTime,
			"last_event_time", st.LastEventTime,
		)
		return outcome, nil
	case state.Duplicate:
		// The state write landed on an earlier attempt that did not reach
		// acknowledgement; finish the alert step it may have missed.
		p.logger.InfowCtx(ctx, "State already applied by this message, replaying alert step")
	}

	if err := ctx.Err(); err != nil {
		return outcome, err
	}
	if _, err := p.alerts.Observe(ctx, ev.SubjectKey, st.Severity); err != nil {
		tracing.RecordError(span, err)
		return outcome, fmt.Errorf("alert update failed: %w", err)
	}
	return outcome, nil
}
