package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable drops idle state older than maxAge.
type Sweepable interface {
	Cleanup(maxAge time.Duration) int
}

// Cleaner periodically evicts idle buckets so per-chat state does not grow
// without bound. Redis keys expire on their own.
type Cleaner struct {
	target   Sweepable
	log      *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(target Sweepable, log *slog.Logger, interval, maxAge time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		target:   target,
		log:      log,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run starts the cleaner loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.target == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("rate limit cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			if removed := c.target.Cleanup(c.maxAge); removed > 0 {
				c.log.Debug("rate limit buckets cleaned", slog.Int("keys_removed", removed))
			}
		}
	}
}
