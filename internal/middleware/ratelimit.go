package middleware

import (
	"fmt"
	"log/slog"

	"gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/bot/handlers"
	"github.com/Proton-105/nudge-bot/internal/ratelimit"
)

// DefaultLimitNotice is sent to a throttled chat when no notice is configured.
const DefaultLimitNotice = "Слишком много сообщений. Попробуйте через минуту."

// RateLimitMiddleware enforces per-chat rate limits for incoming Telegram updates.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	notice  string
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, notice string, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}
	if notice == "" {
		notice = DefaultLimitNotice
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		notice:  notice,
		log:     log,
	}
}

// Handle returns a telebot middleware that enforces per-user rate limits.
func (m *RateLimitMiddleware) Handle(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if m.limiter == nil || m.rules == nil {
			return next(c)
		}

		userID, ok := handlers.ChatID(c)
		if !ok {
			return next(c)
		}

		limit, window, limited := m.rules.For(userID)
		if !limited {
			return next(c)
		}

		key := fmt.Sprintf("chat:%d", userID)
		result, err := m.limiter.Check(handlers.RequestContext(c), key, limit, window)
		if err != nil {
			m.log.Warn("rate limiter error", slog.Int64("user_id", userID), slog.Any("error", err))
			return next(c)
		}

		if !result.Allowed {
			m.log.Warn("rate limit exceeded", slog.Int64("user_id", userID), slog.Time("reset_at", result.ResetAt))
			if c.Callback() != nil {
				return c.Respond(&telebot.CallbackResponse{Text: m.notice})
			}
			return c.Send(m.notice)
		}

		return next(c)
	}
}
