package infrastructure

import (
	"context"
	"time"

	"github.com/draftea/order-fulfillment/shared/idempotency"
	"github.com/draftea/order-fulfillment/shared/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ idempotency.Store = (*RedisIdempotencyStore)(nil)

// RedisConfig locates the redis server backing the idempotency store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedisIdempotencyStore claims events with SETNX. Claims expire after the
// retention window, so no purge job is needed.
type RedisIdempotencyStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisIdempotencyStore(client redis.UniversalClient, retention time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client:    client,
		prefix:    "processed:",
		retention: retention,
	}
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, consumer string, eventID models.ID) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+idempotency.Key(consumer, eventID), time.Now().UTC().Unix(), s.retention).Result()
	if err != nil {
		return false, errors.Wrapf(idempotency.ErrStoreUnavailable, "redis claim: %v", err)
	}
	return ok, nil
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, consumer string, eventID models.ID) error {
	if err := s.client.Del(ctx, s.prefix+idempotency.Key(consumer, eventID)).Err(); err != nil {
		return errors.Wrapf(idempotency.ErrStoreUnavailable, "redis release: %v", err)
	}
	return nil
}
