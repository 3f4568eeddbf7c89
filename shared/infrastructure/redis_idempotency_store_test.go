package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/draftea/order-fulfillment/shared/idempotency"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, retention time.Duration) (*RedisIdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisIdempotencyStore(client, retention), server
}

func TestRedisIdempotencyStore_ClaimRelease(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t, time.Hour)
	eventID := models.GenerateUUID()

	claimed, err := store.Claim(ctx, "projector", eventID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Claim(ctx, "projector", eventID)
	require.NoError(t, err)
	assert.False(t, claimed)

	claimed, err = store.Claim(ctx, "orchestrator", eventID)
	require.NoError(t, err)
	assert.True(t, claimed, "consumers are independent")

	require.NoError(t, store.Release(ctx, "projector", eventID))

	claimed, err = store.Claim(ctx, "projector", eventID)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestRedisIdempotencyStore_ClaimExpires(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t, time.Minute)
	eventID := models.GenerateUUID()

	claimed, err := store.Claim(ctx, "projector", eventID)
	require.NoError(t, err)
	require.True(t, claimed)

	server.FastForward(2 * time.Minute)

	claimed, err = store.Claim(ctx, "projector", eventID)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestRedisIdempotencyStore_Unavailable(t *testing.T) {
	store, server := newRedisStore(t, time.Minute)
	server.Close()

	_, err := store.Claim(context.Background(), "projector", models.GenerateUUID())
	assert.True(t, errors.Is(err, idempotency.ErrStoreUnavailable))
}

func TestRedisIdempotencyStore_WithOnce(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t, time.Hour)
	eventID := models.GenerateUUID()

	calls := 0
	fn := func(ctx context.Context) error {
		calls++
		return nil
	}

	ran, err := idempotency.Once(ctx, store, "orchestrator", eventID, fn)
	require.NoError(t, err)
	assert.True(t, ran)

	ran, err = idempotency.Once(ctx, store, "orchestrator", eventID, fn)
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, calls)
}
