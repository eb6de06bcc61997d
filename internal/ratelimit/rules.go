package ratelimit

import (
	"fmt"
	"time"

	"github.com/Proton-105/nudge-bot/pkg/config"
)

// Rules holds the parsed per-chat limit and the chats exempt from it.
type Rules struct {
	limit     int
	window    time.Duration
	whitelist map[int64]struct{}
}

// NewRules parses cfg. A window that is missing, malformed or not positive
// is a configuration error.
func NewRules(cfg config.RateLimitConfig) (*Rules, error) {
	window, err := time.ParseDuration(cfg.PerUser.Window)
	if err != nil {
		return nil, fmt.Errorf("rate limit window %q: %w", cfg.PerUser.Window, err)
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", window)
	}

	whitelist := make(map[int64]struct{}, len(cfg.Whitelist))
	for _, id := range cfg.Whitelist {
		whitelist[id] = struct{}{}
	}

	return &Rules{limit: cfg.PerUser.Limit, window: window, whitelist: whitelist}, nil
}

// For returns the limit applied to chatID. ok is false for whitelisted chats.
func (r *Rules) For(chatID int64) (limit int, window time.Duration, ok bool) {
	if _, exempt := r.whitelist[chatID]; exempt {
		return 0, 0, false
	}
	return r.limit, r.window, true
}
