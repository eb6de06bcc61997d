package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "nudge:ratelimit:"

// slidingWindow trims entries older than the window, records the current
// event and returns the count together with the oldest remaining score.
// Rejected events are recorded too, so a chat that keeps flooding stays
// throttled until it pauses for a full window.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
redis.call('ZADD', key, now, ARGV[3])
redis.call('PEXPIRE', key, window * 2)

local count = redis.call('ZCARD', key)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {count, oldest[2]}
`)

// RedisLimiter keeps one sorted set of event timestamps per key.
type RedisLimiter struct {
	client *redis.Client
	log    *slog.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed Limiter.
func NewRedisLimiter(client *redis.Client, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{client: client, log: log}
}

// Check records one event for key and reports whether it fits in limit.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("redis client is not configured for rate limiting")
	}

	now := time.Now()
	if limit <= 0 {
		return &Result{ResetAt: now.Add(window)}, nil
	}

	raw, err := slidingWindow.Run(ctx, l.client,
		[]string{keyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), uuid.NewString(),
	).Slice()
	if err != nil {
		l.log.Debug("rate limit script failed", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("rate limit script for %s: %w", key, err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("rate limit script for %s: unexpected reply %v", key, raw)
	}

	count, _ := raw[0].(int64)
	resetAt := now.Add(window)
	if s, ok := raw[1].(string); ok {
		if oldest, err := strconv.ParseFloat(s, 64); err == nil {
			resetAt = time.UnixMilli(int64(oldest)).Add(window)
		}
	}

	return &Result{
		Allowed:   count <= int64(limit),
		Remaining: max(limit-int(count), 0),
		ResetAt:   resetAt,
	}, nil
}
