package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type NopProducer struct{}

func (NopProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	return nil
}

func (NopProducer) Close() error { return nil }

// MemoryProducer keeps published messages in memory. Tests use it in place of Kafka.
type MemoryProducer struct {
	mu       sync.Mutex
	messages []Message
	failWith error
}

func NewMemoryProducer() *MemoryProducer {
	return &MemoryProducer{}
}

func (p *MemoryProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failWith != nil {
		return p.failWith
	}

	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	p.messages = append(p.messages, Message{
		Topic:  topic,
		Key:    key,
		Value:  body,
		Offset: int64(len(p.messages)),
	})
	return nil
}

// FailWith makes every subsequent Publish return err. Pass nil to recover.
func (p *MemoryProducer) FailWith(err error) {
	p.mu.Lock()
	p.failWith = err
	p.mu.Unlock()
}

// Messages returns a copy of what was published to topic.
func (p *MemoryProducer) Messages(topic string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Message
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (p *MemoryProducer) Close() error { return nil }
