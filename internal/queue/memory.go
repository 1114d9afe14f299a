package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"pricewatch/pkg/models"
)

type memoryEntry struct {
	id             string
	body           []byte
	enqueuedAt     time.Time
	receiveCount   int
	invisibleUntil time.Time
}

// MemoryQueue is an in-process Queue with visibility-timeout redelivery,
// used by tests and the single-binary dev mode.
type MemoryQueue struct {
	visibilityTimeout time.Duration
	now               func() time.Time

	mu      sync.Mutex
	seq     int
	entries []*memoryEntry
	notify  chan struct{}
	closed  bool
}

func NewMemoryQueue(visibilityTimeout time.Duration) *MemoryQueue {
	return &MemoryQueue{
		visibilityTimeout: visibilityTimeout,
		now:               time.Now,
		notify:            make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, body []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	id := strconv.Itoa(q.seq)
	q.entries = append(q.entries, &memoryEntry{
		id:         id,
		body:       append([]byte(nil), body...),
		enqueuedAt: q.now(),
	})
	q.wakeLocked()
	return id, nil
}

// EnqueueMessage inserts msg as-is, keeping its id and receive count.
// The next Poll increments the count, like a real redelivery.
func (q *MemoryQueue) EnqueueMessage(msg models.InboundMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, &memoryEntry{
		id:           msg.ID,
		body:         append([]byte(nil), msg.Body...),
		enqueuedAt:   q.now(),
		receiveCount: msg.ReceiveCount - 1,
	})
	q.wakeLocked()
}

func (q *MemoryQueue) Poll(ctx context.Context, maxMessages int, wait time.Duration) ([]models.InboundMessage, error) {
	if maxMessages < 1 {
		maxMessages = 1
	}

	var timer *time.Timer
	if wait > 0 {
		timer = time.NewTimer(wait)
		defer timer.Stop()
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, nil
		}
		batch, nextVisible := q.takeLocked(maxMessages)
		notify := q.notify
		q.mu.Unlock()

		if len(batch) > 0 || wait <= 0 {
			return batch, nil
		}

		// Wake up on a new message, on the earliest visibility expiry, or
		// when the long-poll window ends.
		var (
			expiry      <-chan time.Time
			expiryTimer *time.Timer
		)
		if !nextVisible.IsZero() {
			expiryTimer = time.NewTimer(time.Until(nextVisible))
			expiry = expiryTimer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(expiryTimer)
			return nil, ctx.Err()
		case <-timer.C:
			stopTimer(expiryTimer)
			return nil, nil
		case <-notify:
		case <-expiry:
		}
		stopTimer(expiryTimer)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (q *MemoryQueue) takeLocked(maxMessages int) ([]models.InboundMessage, time.Time) {
	now := q.now()
	var (
		batch       []models.InboundMessage
		nextVisible time.Time
	)
	for _, e := range q.entries {
		if e.invisibleUntil.After(now) {
			if nextVisible.IsZero() || e.invisibleUntil.Before(nextVisible) {
				nextVisible = e.invisibleUntil
			}
			continue
		}
		if len(batch) == maxMessages {
			break
		}
		e.receiveCount++
		e.invisibleUntil = now.Add(q.visibilityTimeout)
		batch = append(batch, models.InboundMessage{
			ID:           e.id,
			Body:         append([]byte(nil), e.body...),
			ReceiptToken: e.id,
			ReceiveCount: e.receiveCount,
			EnqueuedAt:   e.enqueuedAt,
			Stream:       "memory",
		})
	}
	return batch, nextVisible
}

func (q *MemoryQueue) Acknowledge(_ context.Context, receiptTokens ...string) error {
	if len(receiptTokens) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(receiptTokens))
	for _, t := range receiptTokens {
		drop[t] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.entries[:0]
	for _, e := range q.entries {
		if _, ok := drop[e.id]; !ok {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	return nil
}

// Len reports the number of unacknowledged messages, visible or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.wakeLocked()
	}
	return nil
}

func (q *MemoryQueue) wakeLocked() {
	close(q.notify)
	q.notify = make(chan struct{})
}
