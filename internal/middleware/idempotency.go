package middleware

import (
	"log/slog"
	"strconv"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/bot/handlers"
	"github.com/Proton-105/nudge-bot/internal/idempotency"
)

// Idempotency drops updates the guard has already admitted, so a redelivered
// "done" press is not counted twice.
func Idempotency(guard *idempotency.Guard, log *slog.Logger) handlers.Middleware {
	if guard == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := updateKey(c)
			if guard.First(handlers.RequestContext(c), key) {
				return next(c)
			}

			chatID, _ := handlers.ChatID(c)
			log.Info("duplicate update skipped", slog.Int64("user_id", chatID))
			if c.Callback() != nil {
				return c.Respond()
			}
			return nil
		}
	}
}

func updateKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if cb := c.Callback(); cb != nil && cb.ID != "" {
		return idempotency.UpdateKey("cb", cb.ID)
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 && msg.Chat != nil {
		return idempotency.UpdateKey("msg", strconv.FormatInt(msg.Chat.ID, 10), strconv.Itoa(msg.ID))
	}

	return ""
}
