package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"
)

const requestContextKey = "request_context"

// WithRequestContext attaches ctx to the update being handled.
func WithRequestContext(c telebot.Context, ctx context.Context) {
	c.Set(requestContextKey, ctx)
}

// RequestContext returns the context attached by WithRequestContext or a
// background context.
func RequestContext(c telebot.Context) context.Context {
	if c == nil {
		return context.Background()
	}

	if ctx, ok := c.Get(requestContextKey).(context.Context); ok && ctx != nil {
		return ctx
	}

	return context.Background()
}

// ChatID returns the conversation a reminder record belongs to.
func ChatID(c telebot.Context) (int64, bool) {
	if c == nil {
		return 0, false
	}

	if chat := c.Chat(); chat != nil {
		return chat.ID, true
	}

	if sender := c.Sender(); sender != nil {
		return sender.ID, true
	}

	return 0, false
}
