package alerting

import (
	"context"
	"time"

	"pricewatch/internal/broker"
	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

// Dispatcher publishes alert events from a bounded buffer on its own
// goroutine, so a slow or failing feed never holds up message processing.
// Events that do not fit in the buffer are dropped and counted.
type Dispatcher struct {
	producer  broker.Producer
	topic     string
	events    chan models.AlertEvent
	timeout   time.Duration
	delivered func(ctx context.Context, recordID int64) error
	logger    logger.Logger
}

func NewDispatcher(producer broker.Producer, topic string, cfg config.AlertingConfig, log logger.Logger) *Dispatcher {
	buffer := cfg.EmitBuffer
	if buffer <= 0 {
		buffer = 256
	}
	timeout := cfg.EmitTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		producer: producer,
		topic:    topic,
		events:   make(chan models.AlertEvent, buffer),
		timeout:  timeout,
		logger:   log,
	}
}

// OnDelivered registers the callback that marks a queued record delivered
// after its event was published.
func (d *Dispatcher) OnDelivered(fn func(ctx context.Context, recordID int64) error) {
	d.delivered = fn
}

func (d *Dispatcher) Emit(ev models.AlertEvent) {
	select {
	case d.events <- ev:
	default:
		metrics.AlertEmitDroppedTotal.Inc()
		d.logger.Warnw("Alert event buffer full, dropping event",
			"fingerprint", ev.Fingerprint,
			"status", ev.Status,
		)
	}
}

// Run publishes until ctx is done, then flushes what is still buffered
// within one emit timeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	// Publishes outlive ctx so an event taken off the buffer at shutdown
	// is not lost to a canceled context.
	pubCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			d.flush()
			return nil
		case ev := <-d.events:
			d.publish(pubCtx, ev)
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	for {
		select {
		case ev := <-d.events:
			d.publish(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, ev models.AlertEvent) {
	pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.producer.Publish(pubCtx, d.topic, ev.SubjectKey, ev); err != nil {
		metrics.AlertEmitTotal.WithLabelValues("error").Inc()
		d.logger.Errorw("Failed to publish alert event",
			"error", err,
			"fingerprint", ev.Fingerprint,
			"status", ev.Status,
		)
		return
	}
	metrics.AlertEmitTotal.WithLabelValues("success").Inc()

	if ev.Status == models.AlertStatusQueued && d.delivered != nil {
		if err := d.delivered(pubCtx, ev.RecordID); err != nil {
			d.logger.Warnw("Failed to mark alert delivered",
				"error", err,
				"record_id", ev.RecordID,
			)
		}
	}
}

// Pending is the number of buffered events.
func (d *Dispatcher) Pending() int {
	return len(d.events)
}

// SyncEmitter publishes inline. Tests and one-shot tools use it.
type SyncEmitter struct {
	Dispatcher *Dispatcher
}

func (e SyncEmitter) Emit(ev models.AlertEvent) {
	e.Dispatcher.publish(context.Background(), ev)
}
