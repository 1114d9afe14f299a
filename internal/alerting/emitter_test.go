package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/broker"
	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	"pricewatch/pkg/models"
)

const testTopic = "price-alerts"

func TestDispatcher_PublishesAndMarksDelivered(t *testing.T) {
	producer := broker.NewMemoryProducer()
	store := NewMemoryStore()
	d := NewDispatcher(producer, testTopic, config.DefaultAlertingConfig(), logger.NopLogger())
	m := NewManager(store, d, config.DefaultAlertingConfig(), logger.NopLogger())
	d.OnDelivered(m.MarkDelivered)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	_, err := m.Observe(context.Background(), "B1", models.SeverityCritical)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		recs, _ := store.ListActiveBySubject(context.Background(), "B1")
		return len(recs) == 1 && recs[0].Status == models.AlertStatusDelivered
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	msgs := producer.Messages(testTopic)
	require.Len(t, msgs, 1)
	assert.Equal(t, "B1", msgs[0].Key)

	var ev models.AlertEvent
	require.NoError(t, json.Unmarshal(msgs[0].Value, &ev))
	assert.Equal(t, "B1|CRITICAL", ev.Fingerprint)
	assert.Equal(t, models.AlertStatusQueued, ev.Status)
}

func TestDispatcher_PublishFailureLeavesRecordQueued(t *testing.T) {
	producer := broker.NewMemoryProducer()
	producer.FailWith(errors.New("broker down"))
	store := NewMemoryStore()
	d := NewDispatcher(producer, testTopic, config.DefaultAlertingConfig(), logger.NopLogger())
	m := NewManager(store, SyncEmitter{Dispatcher: d}, config.DefaultAlertingConfig(), logger.NopLogger())
	d.OnDelivered(m.MarkDelivered)

	_, err := m.Observe(context.Background(), "B1", models.SeverityHigh)
	require.NoError(t, err, "feed failures never fail the transition")

	recs, err := store.ListActiveBySubject(context.Background(), "B1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.AlertStatusQueued, recs[0].Status)
	assert.Empty(t, producer.Messages(testTopic))
}

func TestDispatcher_DropsWhenBufferFull(t *testing.T) {
	cfg := config.DefaultAlertingConfig()
	cfg.EmitBuffer = 2
	d := NewDispatcher(broker.NewMemoryProducer(), testTopic, cfg, logger.NopLogger())

	for i := 0; i < 5; i++ {
		d.Emit(models.AlertEvent{Fingerprint: "B1|HIGH", Status: models.AlertStatusQueued})
	}
	assert.Equal(t, 2, d.Pending())
}

func TestDispatcher_FlushesOnShutdown(t *testing.T) {
	producer := broker.NewMemoryProducer()
	d := NewDispatcher(producer, testTopic, config.DefaultAlertingConfig(), logger.NopLogger())

	d.Emit(models.AlertEvent{SubjectKey: "B1", Status: models.AlertStatusResolved})
	d.Emit(models.AlertEvent{SubjectKey: "B2", Status: models.AlertStatusResolved})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	assert.Len(t, producer.Messages(testTopic), 2)
	assert.Equal(t, 0, d.Pending())
}
