package failures

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/broker"
	"pricewatch/internal/logger"
	"pricewatch/pkg/models"
)

const dlq = "pricewatch_dead_letter"

type failingStore struct{ err error }

func (s failingStore) Insert(ctx context.Context, rec models.FailureRecord) error { return s.err }

func testMessage() models.InboundMessage {
	return models.NewInboundMessageBuilder().
		WithID("m-1").
		WithBody([]byte(`{not json`)).
		WithReceiveCount(2).
		Build()
}

func TestRecorder_StoresAndMirrors(t *testing.T) {
	store := NewMemoryStore()
	producer := broker.NewMemoryProducer()
	r := NewRecorder(store, producer, dlq, logger.NopLogger())
	fixed := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	rec, err := r.Record(context.Background(), testMessage(), models.ErrorKindMalformed, errors.New("unexpected token"))
	require.NoError(t, err)

	_, err = ulid.Parse(rec.ID)
	assert.NoError(t, err)

	stored := store.Records()
	require.Len(t, stored, 1)
	assert.Equal(t, "m-1", stored[0].OriginalMessageID)
	assert.Equal(t, models.ErrorKindMalformed, stored[0].ErrorKind)
	assert.Equal(t, "unexpected token", stored[0].Detail)
	assert.Equal(t, 2, stored[0].AttemptCount)
	assert.Equal(t, []byte(`{not json`), stored[0].RawPayload)
	assert.Equal(t, fixed, stored[0].OccurredAt)

	msgs := producer.Messages(dlq)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-1", msgs[0].Key)

	var mirrored models.FailureRecord
	require.NoError(t, json.Unmarshal(msgs[0].Value, &mirrored))
	assert.Equal(t, rec.ID, mirrored.ID)
}

func TestRecorder_StoreErrorIsReturned(t *testing.T) {
	producer := broker.NewMemoryProducer()
	r := NewRecorder(failingStore{err: errors.New("mongo down")}, producer, dlq, logger.NopLogger())

	_, err := r.Record(context.Background(), testMessage(), models.ErrorKindPoison, nil)
	assert.Error(t, err)
	assert.Empty(t, producer.Messages(dlq), "nothing is mirrored for an unrecorded failure")
}

func TestRecorder_MirrorFailureIsNotFatal(t *testing.T) {
	store := NewMemoryStore()
	producer := broker.NewMemoryProducer()
	producer.FailWith(errors.New("kafka down"))
	r := NewRecorder(store, producer, dlq, logger.NopLogger())

	_, err := r.Record(context.Background(), testMessage(), models.ErrorKindTimeout, context.DeadlineExceeded)
	require.NoError(t, err)
	assert.Len(t, store.ByKind(models.ErrorKindTimeout), 1)
}

func TestRecorder_WithoutDeadLetterTopic(t *testing.T) {
	store := NewMemoryStore()
	r := NewRecorder(store, nil, "", logger.NopLogger())

	_, err := r.Record(context.Background(), testMessage(), models.ErrorKindPoison, nil)
	require.NoError(t, err)
	assert.Len(t, store.ByKind(models.ErrorKindPoison), 1)
	assert.Empty(t, store.ByKind(models.ErrorKindMalformed))
}
