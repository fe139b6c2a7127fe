package repository

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/SunYerim/StockOfGalaxy/pkg/feed/redisfeed"
	"github.com/SunYerim/StockOfGalaxy/pkg/models"
)

// Compile-time check to ensure RedisStore implements SnapshotStore
var _ SnapshotStore = (*RedisStore)(nil)

type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// GetSnapshots reads the processor's stock:<code> keys in one MGET.
func (r *RedisStore) GetSnapshots(ctx context.Context, codes []string) ([]models.PriceMessage, error) {
	return redisfeed.Snapshots(ctx, r.client, codes)
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
