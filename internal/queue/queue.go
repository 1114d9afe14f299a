package queue

import (
	"context"
	"time"

	"pricewatch/pkg/models"
)

// Queue is the inbound at-least-once delivery contract: long-poll batches,
// acknowledge by receipt token, and redeliver anything not acknowledged
// within the visibility timeout with an incremented receive count.
type Queue interface {
	// Poll blocks up to wait for at least one message and returns at most
	// maxMessages. An empty batch with a nil error means the wait elapsed.
	Poll(ctx context.Context, maxMessages int, wait time.Duration) ([]models.InboundMessage, error)
	// Acknowledge deletes the messages behind the given receipt tokens.
	Acknowledge(ctx context.Context, receiptTokens ...string) error
	Close() error
}

// Publisher appends raw bodies to the queue. Used by the replay command and tests.
type Publisher interface {
	Enqueue(ctx context.Context, body []byte) (string, error)
}
