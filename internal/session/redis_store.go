package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists the session in Redis so several local processes
// (CLI invocations, the watch daemon) share one login.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore creates a store keyed by profile.
func NewRedisStore(rdb *redis.Client, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{rdb: rdb, key: "feedsync:session:" + profile}
}

// Key returns the Redis key holding the session.
func (s *RedisStore) Key() string {
	return s.key
}

func (s *RedisStore) Load(ctx context.Context) (State, error) {
	raw, err := s.rdb.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNoSession
	}
	if err != nil {
		return State{}, fmt.Errorf("redis get session: %w", err)
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return State{}, fmt.Errorf("decode session: %w", err)
	}
	return st, nil
}

// Save stores the session; it expires together with the token when the
// token carries an expiry.
func (s *RedisStore) Save(ctx context.Context, st State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	var ttl time.Duration
	if !st.ExpiresAt.IsZero() {
		ttl = time.Until(st.ExpiresAt)
		if ttl <= 0 {
			return s.Clear(ctx)
		}
	}
	return s.rdb.Set(ctx, s.key, b, ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return s.rdb.Del(ctx, s.key).Err()
}
