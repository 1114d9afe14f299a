package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	"pricewatch/pkg/metrics"
	"pricewatch/pkg/models"
)

const bodyField = "body"

// RedisStreamQueue maps the queue contract onto a Redis stream consumed
// through a consumer group:
//
//	poll        XAUTOCLAIM (idle >= visibility timeout) then XREADGROUP BLOCK
//	acknowledge XACK + XDEL
//	receive     delivery counter from XPENDING
type RedisStreamQueue struct {
	client            redis.UniversalClient
	stream            string
	group             string
	consumer          string
	visibilityTimeout time.Duration
	logger            logger.Logger
}

func NewRedisStreamQueue(client redis.UniversalClient, cfg config.QueueConfig, log logger.Logger) *RedisStreamQueue {
	return &RedisStreamQueue{
		client:            client,
		stream:            cfg.Stream,
		group:             cfg.Group,
		consumer:          cfg.Consumer,
		visibilityTimeout: cfg.VisibilityTimeout,
		logger:            log,
	}
}

// EnsureGroup creates the stream and consumer group if missing.
func (q *RedisStreamQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", q.group, q.stream, err)
	}
	return nil
}

func (q *RedisStreamQueue) Poll(ctx context.Context, maxMessages int, wait time.Duration) ([]models.InboundMessage, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveQueuePollDuration(q.stream, time.Since(start))
	}()

	if maxMessages < 1 {
		maxMessages = 1
	}

	reclaimed, err := q.reclaim(ctx, maxMessages)
	if err != nil {
		return nil, err
	}
	if len(reclaimed) > 0 {
		return reclaimed, nil
	}

	args := &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(maxMessages),
		Block:    wait,
	}
	// go-redis treats Block == 0 as "block forever".
	if wait <= 0 {
		args.Block = -1
	}

	streams, err := q.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", q.stream, err)
	}

	var out []models.InboundMessage
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, q.toInbound(m, 1))
		}
	}
	return out, nil
}

// reclaim takes over entries whose visibility timeout expired.
func (q *RedisStreamQueue) reclaim(ctx context.Context, maxMessages int) ([]models.InboundMessage, error) {
	if q.visibilityTimeout <= 0 {
		return nil, nil
	}

	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  q.visibilityTimeout,
		Start:    "0-0",
		Count:    int64(maxMessages),
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xautoclaim %s: %w", q.stream, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	counts, err := q.deliveryCounts(ctx, msgs)
	if err != nil {
		return nil, err
	}

	out := make([]models.InboundMessage, 0, len(msgs))
	for _, m := range msgs {
		count := counts[m.ID]
		if count < 2 {
			count = 2
		}
		out = append(out, q.toInbound(m, count))
	}
	q.logger.Debugw("Reclaimed expired messages", "stream", q.stream, "count", len(out))
	return out, nil
}

// deliveryCounts looks up each entry on its own: a range query over the
// claimed IDs also returns every pending entry between them and can be
// cut short before reaching the tail of the batch.
func (q *RedisStreamQueue) deliveryCounts(ctx context.Context, msgs []redis.XMessage) (map[string]int, error) {
	pipe := q.client.Pipeline()
	cmds := make([]*redis.XPendingExtCmd, len(msgs))
	for i, m := range msgs {
		cmds[i] = pipe.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: q.stream,
			Group:  q.group,
			Start:  m.ID,
			End:    m.ID,
			Count:  1,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xpending %s: %w", q.stream, err)
	}

	counts := make(map[string]int, len(msgs))
	for _, cmd := range cmds {
		for _, p := range cmd.Val() {
			counts[p.ID] = int(p.RetryCount)
		}
	}
	return counts, nil
}

func (q *RedisStreamQueue) Acknowledge(ctx context.Context, receiptTokens ...string) error {
	if len(receiptTokens) == 0 {
		return nil
	}

	pipe := q.client.TxPipeline()
	pipe.XAck(ctx, q.stream, q.group, receiptTokens...)
	pipe.XDel(ctx, q.stream, receiptTokens...)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.QueueAckFailuresTotal.WithLabelValues(q.stream).Inc()
		return fmt.Errorf("acknowledge %d messages on %s: %w", len(receiptTokens), q.stream, err)
	}
	return nil
}

func (q *RedisStreamQueue) Enqueue(ctx context.Context, body []byte) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{bodyField: body},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", q.stream, err)
	}
	return id, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (q *RedisStreamQueue) Close() error {
	return nil
}

func (q *RedisStreamQueue) toInbound(m redis.XMessage, receiveCount int) models.InboundMessage {
	var body []byte
	switch v := m.Values[bodyField].(type) {
	case string:
		body = []byte(v)
	case []byte:
		body = v
	}

	return models.InboundMessage{
		ID:           m.ID,
		Body:         body,
		ReceiptToken: m.ID,
		ReceiveCount: receiveCount,
		EnqueuedAt:   streamIDTime(m.ID),
		Stream:       q.stream,
	}
}

// streamIDTime extracts the millisecond timestamp part of a stream entry id.
func streamIDTime(id string) time.Time {
	ms, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}
