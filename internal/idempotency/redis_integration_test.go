//go:build integration

package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/testinfra"
)

func TestRedisStore_SeenMark(t *testing.T) {
	client := testinfra.Redis(t)
	s := NewRedisStore(client)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Mark(ctx, "abc", time.Minute))
	require.NoError(t, s.Mark(ctx, "abc", time.Minute))

	seen, err = s.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := client.TTL(ctx, "idem:abc").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}
