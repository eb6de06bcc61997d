package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/domain"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
)

// Sender is the part of telebot.Bot that delivers messages.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// ReminderRenderer renders the reminder message.
type ReminderRenderer interface {
	Reminder(gender domain.Gender) (string, *telebot.ReplyMarkup, error)
}

// Notifier sends reminders straight to Telegram. A breaker shared by all
// sends stops hammering Telegram during an outage.
type Notifier struct {
	sender  Sender
	render  ReminderRenderer
	breaker *apperrors.Breaker
	log     *slog.Logger
}

// NewNotifier builds a Notifier.
func NewNotifier(sender Sender, render ReminderRenderer, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}

	return &Notifier{
		sender:  sender,
		render:  render,
		breaker: apperrors.NewBreaker(apperrors.BreakerOptions{}),
		log:     log,
	}
}

// NotifyReminder sends one reminder, retrying transient Telegram failures.
func (n *Notifier) NotifyReminder(ctx context.Context, r domain.Reminder) error {
	text, markup, err := n.render.Reminder(r.Gender)
	if err != nil {
		return err
	}

	err = apperrors.WithRetry(ctx, func() error {
		if err := n.breaker.Allow(); err != nil {
			return err
		}

		_, sendErr := n.sender.Send(telebot.ChatID(r.UserID), text, markup)
		// A chat that blocked the bot says nothing about Telegram's health.
		n.breaker.Record(sendErr == nil || isPermanent(sendErr))
		if sendErr == nil {
			return nil
		}

		appErr := apperrors.NewExternalAPIError("telegram", sendErr)
		appErr.Retryable = !isPermanent(sendErr)

		var flood telebot.FloodError
		if errors.As(sendErr, &flood) {
			appErr.RetryAfter = time.Duration(flood.RetryAfter) * time.Second
		}
		return appErr
	})
	if errors.Is(err, apperrors.ErrCircuitOpen) {
		n.log.Warn("telegram circuit open, reminder not sent", slog.Int64("user_id", r.UserID))
		err = apperrors.NewExternalAPIError("telegram", err)
	}
	if err != nil {
		return fmt.Errorf("send reminder to %d: %w", r.UserID, err)
	}

	n.log.Debug("reminder delivered", slog.Int64("user_id", r.UserID))
	return nil
}

// isPermanent reports Telegram errors that no retry can fix.
func isPermanent(err error) bool {
	return errors.Is(err, telebot.ErrBlockedByUser) ||
		errors.Is(err, telebot.ErrUserIsDeactivated) ||
		errors.Is(err, telebot.ErrChatNotFound)
}
