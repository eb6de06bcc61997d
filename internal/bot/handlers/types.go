package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/reminder"
)

// Handler processes bot commands and text.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Operation is a service call keyed by the chat it came from.
type Operation func(ctx context.Context, userID int64) (reminder.Reply, error)

// Renderer turns a reply into a Telegram message.
type Renderer interface {
	Render(out reminder.Reply) (string, *telebot.ReplyMarkup, error)
}
