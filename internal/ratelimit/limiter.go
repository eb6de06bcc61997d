// Package ratelimit throttles inbound chat updates with sliding windows kept
// in Redis or in memory.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Proton-105/nudge-bot/pkg/config"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter describes a rate-limiting strategy. A denied request is reported
// through Result.Allowed; errors mean the backend failed.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// New picks the limiter for cfg. The redis backend falls back to memory when
// Redis errors. The returned memory limiter needs periodic Cleanup.
func New(cfg config.RateLimitConfig, client *redis.Client, log *slog.Logger) (Limiter, *MemoryLimiter) {
	memory := NewMemoryLimiter(log)
	if cfg.Backend == "redis" && client != nil {
		return NewAdaptiveLimiter(NewRedisLimiter(client, log), memory, log), memory
	}

	return memory, memory
}
