package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps session entries in Redis under "<prefix>:<key>".
// Useful when several client processes on one host share a login.
//
//	Performance: 1 Redis command per operation.
type RedisStorage struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStorage creates a [RedisStorage]. A ttl of zero keeps entries until
// they are removed.
func NewRedisStorage(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStorage {
	if prefix == "" {
		prefix = "lg"
	}
	return &RedisStorage{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisStorage) key(key string) string {
	return r.prefix + ":" + key
}

// GetItem fetches a value. A missing key is reported as ok=false.
func (r *RedisStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	value, err := r.redis.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return value, true, nil
}

// SetItem writes a value with the configured TTL.
func (r *RedisStorage) SetItem(ctx context.Context, key, value string) error {
	if err := r.redis.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// RemoveItem deletes a key. Removing a missing key is not an error.
func (r *RedisStorage) RemoveItem(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (r *RedisStorage) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return time.Since(start), nil
}
