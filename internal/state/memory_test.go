package state

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pricewatch/pkg/errors"
	"pricewatch/pkg/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func update(key string, at time.Time, idem string, sev models.Severity) models.StateUpdate {
	return models.StateUpdate{
		SubjectKey:     key,
		EventTime:      at,
		Fields:         map[string]interface{}{"our_price": 10.0},
		Severity:       sev,
		IdempotencyKey: idem,
	}
}

func TestMemoryStore_Upsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	outcome, st, err := s.Upsert(ctx, update("B1", base, "k1", models.SeverityHigh))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome)
	assert.Equal(t, int64(1), st.Version)

	outcome, st, err = s.Upsert(ctx, update("B1", base, "k1", models.SeverityHigh))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, outcome)
	assert.Equal(t, int64(1), st.Version)

	outcome, _, err = s.Upsert(ctx, update("B1", base.Add(-time.Minute), "k0", models.SeverityOK))
	require.NoError(t, err)
	assert.Equal(t, Stale, outcome)

	outcome, st, err = s.Upsert(ctx, update("B1", base, "k2", models.SeverityWarning))
	require.NoError(t, err)
	assert.Equal(t, Applied, outcome, "equal event time is not older")
	assert.Equal(t, models.SeverityWarning, st.Severity)
	assert.Equal(t, int64(2), st.Version)

	got, err := s.Get(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, "k2", got.LastIdempotencyKey)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, st, err := s.Upsert(ctx, update("B1", base, "k1", models.SeverityOK))
	require.NoError(t, err)

	st.Fields["our_price"] = 999.0

	got, err := s.Get(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Fields["our_price"])
}

func TestMemoryStore_OutOfOrderNeverRegresses(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		s := NewMemoryStore()
		ctx := context.Background()

		times := make([]time.Time, 15)
		for i := range times {
			times[i] = base.Add(time.Duration(rng.Intn(3600)) * time.Second)
		}
		max := times[0]
		for _, ts := range times {
			if ts.After(max) {
				max = ts
			}
		}

		rng.Shuffle(len(times), func(i, j int) { times[i], times[j] = times[j], times[i] })
		for i, ts := range times {
			_, _, err := s.Upsert(ctx, update("B1", ts, string(rune('a'+i)), models.SeverityOK))
			require.NoError(t, err)
		}

		got, err := s.Get(ctx, "B1")
		require.NoError(t, err)
		assert.True(t, got.LastEventTime.Equal(max), "round %d: got %s want %s", round, got.LastEventTime, max)
	}
}
