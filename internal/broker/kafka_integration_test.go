//go:build integration

package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	"pricewatch/internal/testinfra"
)

func TestKafka_PublishConsume(t *testing.T) {
	brokers := testinfra.Kafka(t)
	cfg := config.KafkaConfig{Brokers: brokers, GroupID: "test-group"}
	log := logger.NopLogger()

	producer := NewKafkaProducer(cfg, "test", log)
	defer producer.Close()

	// auto-creates the topic
	require.Eventually(t, func() bool {
		return producer.Publish(context.Background(), "test_alerts", "warmup", map[string]string{"n": "0"}) == nil
	}, 30*time.Second, 500*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	received := make(chan Message, 10)
	consumer := NewKafkaConsumer(cfg, log)
	go consumer.Consume(ctx, "test_alerts", func(ctx context.Context, msg Message) error {
		received <- msg
		return nil
	})
	defer consumer.Close()

	// the reader starts at the latest offset; keep publishing until one arrives
	var got Message
	require.Eventually(t, func() bool {
		_ = producer.Publish(ctx, "test_alerts", "sku-1", map[string]string{"status": "queued"})
		select {
		case got = <-received:
			return true
		case <-time.After(time.Second):
			return false
		}
	}, 45*time.Second, 100*time.Millisecond)

	assert.Equal(t, "sku-1", got.Key)
	var body map[string]string
	require.NoError(t, json.Unmarshal(got.Value, &body))
	assert.Equal(t, "queued", body["status"])
}
