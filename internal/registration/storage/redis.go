package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/practicum-hub/practicum/internal/registration"
)

var _ registration.Storage = (*Redis)(nil)

const redisKeyPrefix = "practicum:draft:"

// Redis stores drafts in Redis with an optional expiry.
type Redis struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedis constructs a Redis store. A zero ttl keeps drafts until cleared.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Get fetches the value stored under key.
func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, registration.ErrStorageMiss
		}
		return nil, fmt.Errorf("storage: redis get: %w", err)
	}
	return data, nil
}

// Set writes value under key, refreshing the expiry.
func (s *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, redisKey(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("storage: redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Redis) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("storage: redis del: %w", err)
	}
	return nil
}

// Exists reports whether key is present.
func (s *Redis) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("storage: redis exists: %w", err)
	}
	return n > 0, nil
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}
