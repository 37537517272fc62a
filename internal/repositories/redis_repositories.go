package repositories

import (
	"context"
	"errors"
	"time"

	"munda-checkout/pkg/cache"
)

type redisCartStorage struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewRedisCartStorage stores carts as raw JSON strings. A zero ttl keeps
// them forever; otherwise every save refreshes the expiry.
func NewRedisCartStorage(c *cache.RedisCache, ttl time.Duration) CartStorage {
	return &redisCartStorage{cache: c, ttl: ttl}
}

func (r *redisCartStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.cache.GetRaw(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrCartNotFound
	}
	return data, err
}

func (r *redisCartStorage) Save(ctx context.Context, key string, payload []byte) error {
	return r.cache.SetRaw(ctx, key, payload, r.ttl)
}

func (r *redisCartStorage) Delete(ctx context.Context, key string) error {
	return r.cache.Delete(ctx, key)
}
