package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the subset of the Redis client wrapper the backend uses.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RedisBackend stores the snapshot under a single Redis key without expiry.
type RedisBackend struct {
	client KV
	key    string
	log    *slog.Logger
}

// NewRedisBackend builds a backend that reads and writes key.
func NewRedisBackend(client KV, key string, log *slog.Logger) *RedisBackend {
	if log == nil {
		log = slog.Default()
	}

	return &RedisBackend{
		client: client,
		key:    key,
		log:    log,
	}
}

// Load fetches the snapshot or ErrNoSnapshot when the key is absent.
func (b *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoSnapshot
		}

		b.log.Error("failed to get snapshot from redis", slog.String("key", b.key), slog.Any("error", err))
		return nil, fmt.Errorf("redis get %s: %w", b.key, err)
	}

	return []byte(data), nil
}

// Save replaces the snapshot.
func (b *RedisBackend) Save(ctx context.Context, data []byte) error {
	if err := b.client.Set(ctx, b.key, data, 0); err != nil {
		b.log.Error("failed to save snapshot in redis", slog.String("key", b.key), slog.Any("error", err))
		return fmt.Errorf("redis set %s: %w", b.key, err)
	}

	return nil
}

// HealthCheck pings Redis when the client supports it.
func (b *RedisBackend) HealthCheck(ctx context.Context) error {
	pinger, ok := b.client.(interface {
		Ping(ctx context.Context) *redis.StatusCmd
	})
	if !ok {
		return nil
	}
	return pinger.Ping(ctx).Err()
}
