//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/config"
	"pricewatch/internal/logger"
	"pricewatch/internal/testinfra"
)

func TestRedisStreamQueue_PollAckRedeliver(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()

	q := NewRedisStreamQueue(client, config.QueueConfig{
		Stream:            "test_notifications",
		Group:             "test_group",
		Consumer:          "c1",
		VisibilityTimeout: 200 * time.Millisecond,
	}, logger.NopLogger())
	require.NoError(t, q.EnsureGroup(ctx))
	require.NoError(t, q.EnsureGroup(ctx))

	id1, err := q.Enqueue(ctx, []byte(`{"n":1}`))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, []byte(`{"n":2}`))
	require.NoError(t, err)

	batch, err := q.Poll(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, id1, batch[0].ID)
	assert.Equal(t, 1, batch[0].ReceiveCount)
	assert.Equal(t, `{"n":1}`, string(batch[0].Body))

	require.NoError(t, q.Acknowledge(ctx, batch[0].ReceiptToken))

	empty, err := q.Poll(ctx, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, empty)

	time.Sleep(300 * time.Millisecond)

	redelivered, err := q.Poll(ctx, 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	assert.Equal(t, batch[1].ID, redelivered[0].ID)
	assert.Equal(t, 2, redelivered[0].ReceiveCount)

	require.NoError(t, q.Acknowledge(ctx, redelivered[0].ReceiptToken))
	length, err := client.XLen(ctx, "test_notifications").Result()
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestRedisStreamQueue_ReceiveCountAcrossPendingGap(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()

	const stream, group = "test_gap_notifications", "test_gap_group"
	q := NewRedisStreamQueue(client, config.QueueConfig{
		Stream:            stream,
		Group:             group,
		Consumer:          "c1",
		VisibilityTimeout: 200 * time.Millisecond,
	}, logger.NopLogger())
	require.NoError(t, q.EnsureGroup(ctx))

	headID, err := q.Enqueue(ctx, []byte(`{"n":"head"}`))
	require.NoError(t, err)
	busyIDs := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		id, err := q.Enqueue(ctx, []byte(`{"n":"busy"}`))
		require.NoError(t, err)
		busyIDs = append(busyIDs, id)
	}
	tailID, err := q.Enqueue(ctx, []byte(`{"n":"tail"}`))
	require.NoError(t, err)

	first, err := q.Poll(ctx, 17, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, first, 17)

	for round := 1; round <= 3; round++ {
		time.Sleep(300 * time.Millisecond)

		// Keep the middle entries pending but fresh so only head and tail expire.
		_, err := client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: "c1",
			MinIdle:  0,
			Messages: busyIDs,
		}).Result()
		require.NoError(t, err)

		batch, err := q.Poll(ctx, 2, 50*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, batch, 2, "round %d", round)

		counts := map[string]int{}
		for _, m := range batch {
			counts[m.ID] = m.ReceiveCount
		}
		assert.Equal(t, round+1, counts[headID], "head receive count, round %d", round)
		assert.Equal(t, round+1, counts[tailID], "tail receive count, round %d", round)
	}
}
