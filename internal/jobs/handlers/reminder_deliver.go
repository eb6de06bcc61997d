// Package handlers processes queued jobs.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/nudge-bot/internal/domain"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/internal/jobs"
	"github.com/Proton-105/nudge-bot/internal/state"
)

// Notifier delivers a reminder to the chat.
type Notifier interface {
	NotifyReminder(ctx context.Context, r domain.Reminder) error
}

// UserSource looks up the current record of a chat.
type UserSource interface {
	User(id int64) (state.User, bool)
}

// ReminderDeliverHandler sends queued reminders through the bot.
type ReminderDeliverHandler struct {
	notifier Notifier
	users    UserSource
	log      *slog.Logger
}

// NewReminderDeliverHandler builds the handler for TaskTypeReminderDeliver.
func NewReminderDeliverHandler(notifier Notifier, users UserSource, log *slog.Logger) *ReminderDeliverHandler {
	if log == nil {
		log = slog.Default()
	}

	return &ReminderDeliverHandler{notifier: notifier, users: users, log: log}
}

// ProcessTask delivers one reminder. Malformed payloads and permanent
// Telegram failures are not retried. A user who reset or went back to
// settings while the task waited gets nothing.
func (h *ReminderDeliverHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	r, err := jobs.DecodeReminder(t)
	if err != nil {
		h.log.ErrorContext(ctx, "reminder delivery: bad payload", slog.String("task_type", t.Type()), slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log := h.log.With(slog.Int64("user_id", r.UserID), slog.Time("fired_at", r.FiredAt))

	if u, ok := h.users.User(r.UserID); !ok || !u.IsActive() {
		log.InfoContext(ctx, "reminder delivery: user no longer active, dropping")
		return nil
	}

	if err := h.notifier.NotifyReminder(ctx, r); err != nil {
		if apperrors.HasCode(err, apperrors.CodeExternalAPI) && !apperrors.IsRetryable(err) {
			log.WarnContext(ctx, "reminder delivery: permanent failure", slog.Any("error", err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	log.DebugContext(ctx, "reminder delivered from queue")
	return nil
}
