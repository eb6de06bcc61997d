package ratelimit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Proton-105/nudge-bot/pkg/metrics"
)

// AdaptiveLimiter checks against Redis and, while Redis fails, against the
// in-memory limiter at half the configured limit.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	degraded atomic.Bool
	log      *slog.Logger
}

// NewAdaptiveLimiter wraps primary with fallback.
func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{primary: primary, fallback: fallback, log: log}
}

// Check implements Limiter.
func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	result, err := a.primary.Check(ctx, key, limit, window)
	if err == nil {
		if a.degraded.CompareAndSwap(true, false) {
			a.log.Info("redis rate limiter recovered")
		}
		metrics.RecordRateLimit("redis", result.Allowed)
		return result, nil
	}

	metrics.RecordRateLimitBackendError()
	if a.degraded.CompareAndSwap(false, true) {
		a.log.Warn("redis rate limiter failed, using in-memory limits", slog.Any("error", err))
	}

	result, err = a.fallback.Check(ctx, key, max(limit/2, 1), window)
	if err != nil {
		return nil, err
	}

	metrics.RecordRateLimit("memory", result.Allowed)
	return result, nil
}

// Degraded reports whether the last check fell back to memory.
func (a *AdaptiveLimiter) Degraded() bool {
	return a.degraded.Load()
}
