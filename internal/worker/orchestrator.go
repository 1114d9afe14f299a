// Package worker runs the ingestion loop: one poller feeding a fixed set
// of partition workers, each processing its subjects sequentially.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"pricewatch/internal/alerting"
	"pricewatch/internal/config"
	"pricewatch/internal/failures"
	"pricewatch/internal/ingest"
	"pricewatch/internal/logger"
	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/logging"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
	"pricewatch/pkg/tracing"
)

const (
	pollErrorBackoff = time.Second
	ackTimeout       = 5 * time.Second
)

type task struct {
	msg      models.InboundMessage
	event    *models.NormalizedEvent
	received time.Time
}

type Orchestrator struct {
	ingestor *ingest.Ingestor
	pipeline *Pipeline
	recorder *failures.Recorder
	alerts   *alerting.Manager
	cfg      config.WorkerConfig
	logger   logger.Logger

	partitions []chan task
}

func NewOrchestrator(
	in *ingest.Ingestor,
	pipeline *Pipeline,
	recorder *failures.Recorder,
	alerts *alerting.Manager,
	cfg config.WorkerConfig,
	log logger.Logger,
) *Orchestrator {
	n := cfg.Partitions
	if n < 1 {
		n = 1
	}
	buffer := cfg.PartitionBuffer
	if buffer < 1 {
		buffer = 1
	}

	o := &Orchestrator{
		ingestor:   in,
		pipeline:   pipeline,
		recorder:   recorder,
		alerts:     alerts,
		cfg:        cfg,
		logger:     log,
		partitions: make([]chan task, n),
	}
	for i := range o.partitions {
		o.partitions[i] = make(chan task, buffer)
	}
	return o
}

// Run blocks until ctx is canceled. Work still buffered in partitions at
// that point is not acknowledged and will be redelivered.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	for i := range o.partitions {
		partition := i
		g.Go(func() error {
			o.runPartition(gCtx, partition)
			return nil
		})
	}

	g.Go(func() error {
		o.poll(gCtx)
		return nil
	})

	if o.alerts != nil && o.cfg.QuietSweepInterval > 0 {
		g.Go(func() error {
			o.sweep(gCtx)
			return nil
		})
	}

	return g.Wait()
}

func (o *Orchestrator) poll(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := o.ingestor.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.ErrorwCtx(ctx, "Queue poll failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollErrorBackoff):
			}
			continue
		}

		received := time.Now()
		for _, msg := range msgs {
			if !o.dispatch(ctx, msg, received) {
				return
			}
		}
	}
}

// dispatch ingests msg and routes an event to its partition, blocking
// while that partition is full. It returns false once ctx is done.
func (o *Orchestrator) dispatch(ctx context.Context, msg models.InboundMessage, received time.Time) bool {
	res, err := o.ingestor.Ingest(ctx, msg)
	if err != nil {
		metrics.IncIngestOutcome("error")
		o.logger.WarnwCtx(logging.WithMessageID(ctx, msg.ID), "Ingest failed, leaving message for redelivery",
			"error", err,
		)
		return true
	}
	if res.Outcome != ingest.OutcomeEvent {
		return true
	}

	p := Partition(res.Event.SubjectKey, len(o.partitions))
	select {
	case o.partitions[p] <- task{msg: msg, event: res.Event, received: received}:
		metrics.PartitionQueueDepth.WithLabelValues(strconv.Itoa(p)).Set(float64(len(o.partitions[p])))
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) runPartition(ctx context.Context, partition int) {
	ctx = logging.WithPartition(ctx, partition)
	ch := o.partitions[partition]
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ch:
			metrics.PartitionQueueDepth.WithLabelValues(strconv.Itoa(partition)).Set(float64(len(ch)))
			o.handle(ctx, t)
		}
	}
}

// handle processes one event under the processing deadline and
// acknowledges it only on success. A task that can no longer finish
// inside its visibility window is dropped unacknowledged: the queue has
// handed it out again, or will before this attempt could complete.
func (o *Orchestrator) handle(ctx context.Context, t task) {
	ctx = logging.WithMessageID(ctx, t.msg.ID)
	ctx = logging.WithSubjectKey(ctx, t.event.SubjectKey)
	ctx, span := tracing.StartMessageSpan(ctx, t.msg.ID)
	defer span.End()
	if traceID := tracing.TraceID(ctx); traceID != "" {
		ctx = logging.WithTraceID(ctx, traceID)
	}
	start := time.Now()

	if o.expired(t, start) {
		metrics.IncIngestOutcome("expired")
		o.logger.WarnwCtx(ctx, "Message waited past its visibility window, leaving it for redelivery",
			"waited", start.Sub(t.received),
			"visibility_timeout", o.ingestor.VisibilityTimeout(),
		)
		return
	}

	outcome, err := o.process(ctx, t.event)
	tracing.RecordError(span, err)

	switch {
	case err == nil:
		o.ingestor.Commit(ctx, t.event)
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
		o.ingestor.Acknowledge(ackCtx, t.msg)
		cancel()
		metrics.IncIngestOutcome(string(outcome))
		metrics.ObserveIngestDuration(string(outcome), time.Since(start))

	case ctx.Err() != nil:
		// Shutting down; the message comes back after the visibility timeout.

	case errors.Is(err, context.DeadlineExceeded):
		metrics.IncIngestOutcome("timeout")
		metrics.ObserveIngestDuration("timeout", time.Since(start))
		o.logger.WarnwCtx(ctx, "Processing deadline exceeded, leaving message for redelivery",
			"deadline", o.cfg.ProcessingDeadline,
		)
		if _, rerr := o.recorder.Record(ctx, t.msg, models.ErrorKindTimeout, err); rerr != nil {
			o.logger.ErrorwCtx(ctx, "Failed to record timeout", "error", rerr)
		}

	default:
		metrics.IncIngestOutcome("error")
		metrics.ObserveIngestDuration("error", time.Since(start))
		o.logger.ErrorwCtx(ctx, "Processing failed, leaving message for redelivery",
			"error", err,
		)
	}
}

func (o *Orchestrator) expired(t task, now time.Time) bool {
	visibility := o.ingestor.VisibilityTimeout()
	if visibility <= 0 || t.received.IsZero() {
		return false
	}
	return now.Sub(t.received)+o.cfg.ProcessingDeadline > visibility
}

func (o *Orchestrator) process(ctx context.Context, ev *models.NormalizedEvent) (outcome string, err error) {
	if o.cfg.ProcessingDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ProcessingDeadline)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.RecoverPanic(r)
		}
	}()

	res, err := o.pipeline.Process(ctx, ev)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Past the deadline the result no longer counts, and driver errors
		// caused by the cancellation are reported as the deadline itself.
		switch {
		case err == nil:
			err = ctxErr
		case !errors.Is(err, ctxErr):
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
	}
	return string(res), err
}

func (o *Orchestrator) sweep(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.QuietSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.alerts.SweepQuiet(ctx)
			if err != nil {
				if ctx.Err() == nil {
					o.logger.ErrorwCtx(ctx, "Quiet-period sweep failed", "error", err)
				}
				continue
			}
			if n > 0 {
				o.logger.InfowCtx(ctx, "Resolved quiet alerts", "count", n)
			}
		}
	}
}
