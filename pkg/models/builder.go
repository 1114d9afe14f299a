package models

import (
	"encoding/json"
	"time"
)

type InboundMessageBuilder struct {
	msg *InboundMessage
}

func NewInboundMessageBuilder() *InboundMessageBuilder {
	return &InboundMessageBuilder{
		msg: &InboundMessage{ReceiveCount: 1},
	}
}

func (b *InboundMessageBuilder) WithID(id string) *InboundMessageBuilder {
	b.msg.ID = id
	return b
}

func (b *InboundMessageBuilder) WithBody(body []byte) *InboundMessageBuilder {
	b.msg.Body = body
	return b
}

// WithNotification marshals n as the message body.
func (b *InboundMessageBuilder) WithNotification(n ChangeNotification) *InboundMessageBuilder {
	body, _ := json.Marshal(n)
	b.msg.Body = body
	return b
}

func (b *InboundMessageBuilder) WithReceiveCount(count int) *InboundMessageBuilder {
	b.msg.ReceiveCount = count
	return b
}

func (b *InboundMessageBuilder) Build() InboundMessage {
	if b.msg.EnqueuedAt.IsZero() {
		b.msg.EnqueuedAt = time.Now()
	}
	if b.msg.ReceiptToken == "" {
		b.msg.ReceiptToken = b.msg.ID
	}
	return *b.msg
}
