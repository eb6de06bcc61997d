// Package bot is the Telegram transport: it routes updates to the reminder
// service and renders its replies.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/bot/handlers"
	"github.com/Proton-105/nudge-bot/internal/bot/keyboard"
	"github.com/Proton-105/nudge-bot/internal/bot/messages"
	"github.com/Proton-105/nudge-bot/internal/domain"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/internal/idempotency"
	"github.com/Proton-105/nudge-bot/internal/middleware"
	"github.com/Proton-105/nudge-bot/internal/reminder"
	"github.com/Proton-105/nudge-bot/internal/state"
	"github.com/Proton-105/nudge-bot/pkg/config"
)

// Service is the set of reminder operations exposed to chats.
type Service interface {
	Start(ctx context.Context, userID int64) (reminder.Reply, error)
	Settings(ctx context.Context, userID int64) (reminder.Reply, error)
	Status(ctx context.Context, userID int64) (reminder.Reply, error)
	Gender(ctx context.Context, userID int64, gender domain.Gender) (reminder.Reply, error)
	Text(ctx context.Context, userID int64, text string) (reminder.Reply, error)
	Done(ctx context.Context, userID int64) (reminder.Reply, error)
	Later(ctx context.Context, userID int64) (reminder.Reply, error)
	ResetRequest(ctx context.Context, userID int64) (reminder.Reply, error)
	ResetConfirm(ctx context.Context, userID int64) (reminder.Reply, error)
	ResetCancel(ctx context.Context, userID int64) (reminder.Reply, error)
}

// Renderer renders service replies and failure apologies.
type Renderer interface {
	handlers.Renderer
	FailureTexts
}

// Options carries the bot's collaborators.
type Options struct {
	Service    Service
	States     StateSource
	Renderer   *messages.Renderer
	ErrHandler *apperrors.Handler
	RateLimit  *middleware.RateLimitMiddleware
	Dedup      *idempotency.Guard
}

// Bot wraps telebot.Bot with the router serving reminder chats.
type Bot struct {
	telebot  *telebot.Bot
	log      *slog.Logger
	router   *Router
	renderer *messages.Renderer
}

// New builds a telegram bot instance configured according to the application settings.
func New(cfg config.BotConfig, opts Options, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token: cfg.Token,
		OnError: func(err error, c telebot.Context) {
			chatID, _ := handlers.ChatID(c)
			log.Error("telebot error", slog.Int64("user_id", chatID), slog.Any("error", err))
		},
	}

	if cfg.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, apperrors.NewExternalAPIError("telegram", fmt.Errorf("initialize telebot: %w", err))
	}

	router := NewRouter(NewDispatcher(opts.States, log), log)
	Setup(router, opts.Service, opts.Renderer, opts.ErrHandler, log, middleware.Idempotency(opts.Dedup, log))

	b := &Bot{
		telebot:  tb,
		log:      log,
		router:   router,
		renderer: opts.Renderer,
	}

	if opts.RateLimit != nil {
		b.telebot.Use(opts.RateLimit.Handle)
	}

	b.registerTelebotHandlers()

	return b, nil
}

// Setup installs the middleware chain and every command, callback and state
// handler on r. Extra middlewares run innermost, right before the handler.
func Setup(r *Router, svc Service, render Renderer, errHandler *apperrors.Handler, log *slog.Logger, extra ...handlers.Middleware) {
	r.Use(RecoveryMiddleware(log, errHandler, render))
	r.Use(LoggingMiddleware(log))
	r.Use(ErrorHandlingMiddleware(log, errHandler, render))
	r.Use(middleware.Metrics)
	for _, mw := range extra {
		r.Use(mw)
	}

	r.RegisterCommand(CommandStart, handlers.NewReplyHandler(svc.Start, render))
	r.RegisterCommand(CommandSettings, handlers.NewReplyHandler(svc.Settings, render))
	r.RegisterCommand(CommandStatus, handlers.NewReplyHandler(svc.Status, render))
	r.RegisterCommand(CommandReset, handlers.NewReplyHandler(svc.ResetRequest, render))

	r.RegisterCallbackPrefix(callbackGenderPrefix, handlers.NewGenderHandler(svc.Gender, render))
	r.RegisterCallback(keyboard.CallbackConfirmReset, handlers.NewEditHandler(svc.ResetConfirm, render))
	r.RegisterCallback(keyboard.CallbackCancelReset, handlers.NewEditHandler(svc.ResetCancel, render))
	r.RegisterCallback(keyboard.CallbackDone, handlers.NewEditHandler(svc.Done, render))
	r.RegisterCallback(keyboard.CallbackLater, handlers.NewEditHandler(svc.Later, render))

	text := handlers.NewTextHandler(svc.Text, render)
	for _, s := range state.States {
		r.dispatcher.RegisterStateHandler(s, text)
	}
}

// Start registers the command menu and runs the telegram bot event loop.
func (b *Bot) Start() {
	if b.telebot == nil {
		return
	}

	commands := []telebot.Command{
		{Text: CommandStart[1:], Description: "start or continue setup"},
		{Text: CommandSettings[1:], Description: "change interval and timezone"},
		{Text: CommandStatus[1:], Description: "show settings and today's count"},
		{Text: CommandReset[1:], Description: "delete all data"},
	}
	if err := b.telebot.SetCommands(commands); err != nil {
		b.log.Warn("failed to register command menu", slog.Any("error", err))
	}

	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Notifier returns a reminder notifier sending through this bot.
func (b *Bot) Notifier() *Notifier {
	return NewNotifier(b.telebot, b.renderer, b.log)
}

func (b *Bot) registerTelebotHandlers() {
	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)
}
