// Package idempotency drops Telegram updates that were already handled.
package idempotency

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTTL bounds how long a handled update is remembered.
const DefaultTTL = 24 * time.Hour

// Store records keys and reports whether a key is new.
type Store interface {
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Guard admits each key once per TTL.
type Guard struct {
	store Store
	ttl   time.Duration
	log   *slog.Logger
}

// NewGuard builds a Guard. A non-positive ttl uses DefaultTTL.
func NewGuard(store Store, ttl time.Duration, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Guard{store: store, ttl: ttl, log: log}
}

// First reports whether key is seen for the first time. Store failures
// admit the key: a rare duplicate beats a dropped update.
func (g *Guard) First(ctx context.Context, key string) bool {
	if g == nil || g.store == nil || key == "" {
		return true
	}

	first, err := g.store.MarkSeen(ctx, key, g.ttl)
	if err != nil {
		g.log.Warn("idempotency store failed, admitting update", slog.String("key", key), slog.Any("error", err))
		return true
	}

	return first
}
