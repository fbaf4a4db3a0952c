package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetBytes returns the cached value for key. Returns (nil, false, nil) on a miss
// or when rdb is nil.
func GetBytes(ctx context.Context, rdb *redis.Client, key string) ([]byte, bool, error) {
	if rdb == nil {
		return nil, false, nil
	}
	b, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// SetBytes stores value under key with ttl. A nil rdb is a no-op.
func SetBytes(ctx context.Context, rdb *redis.Client, key string, value []byte, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	return rdb.Set(ctx, key, value, ttl).Err()
}

// Aside tries Redis first; on a miss it calls fetch and stores the result
// with ttl (best-effort). The bool reports whether the value came from cache.
func Aside(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration, fetch func() ([]byte, error)) ([]byte, bool, error) {
	cached, found, err := GetBytes(ctx, rdb, key)
	if err == nil && found {
		return cached, true, nil
	}

	value, err := fetch()
	if err != nil {
		return nil, false, err
	}

	_ = SetBytes(ctx, rdb, key, value, ttl)
	return value, false, nil
}
