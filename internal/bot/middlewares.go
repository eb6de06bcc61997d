package bot

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/nudge-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/nudge-bot/internal/errors"
	"github.com/Proton-105/nudge-bot/pkg/logger"
)

// FailureTexts localizes the apology sent when an update fails.
type FailureTexts interface {
	Failure(code string) string
}

// RecoveryMiddleware turns a handler panic into a critical error report and
// an apology in the chat.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler, texts FailureTexts) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

				appErr := apperrors.NewStateError(fmt.Sprintf("panic recovered: %v", r))
				appErr.Severity = apperrors.SeverityCritical
				apologize(c, log, errHandler, texts, appErr)
				err = nil
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware reports handler errors and apologizes in the chat.
// The update is considered handled afterwards.
func ErrorHandlingMiddleware(log *slog.Logger, errHandler *apperrors.Handler, texts FailureTexts) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			if err := next(c); err != nil {
				apologize(c, log, errHandler, texts, err)
			}
			return nil
		}
	}
}

func apologize(c telebot.Context, log *slog.Logger, errHandler *apperrors.Handler, texts FailureTexts, err error) {
	report := apperrors.Report{Code: apperrors.CodeUnknown}
	if errHandler != nil {
		report = errHandler.Handle(handlers.RequestContext(c), err)
	} else {
		log.Error("update failed", slog.Any("error", err))
	}

	text := report.UserMessage
	if texts != nil {
		text = texts.Failure(report.Code)
	}
	if text == "" || c == nil {
		return
	}

	if sendErr := c.Send(text); sendErr != nil {
		chatID, _ := handlers.ChatID(c)
		log.Warn("failed to deliver apology", slog.Int64("user_id", chatID), slog.Any("error", sendErr))
	}
}

// LoggingMiddleware tags the update with a correlation id and logs its outcome.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			start := time.Now()
			correlationID := logger.NewCorrelationID()
			handlers.WithRequestContext(c, logger.WithCorrelationID(handlers.RequestContext(c), correlationID))

			err := next(c)

			chatID, _ := handlers.ChatID(c)
			level := slog.LevelInfo
			if err != nil {
				level = slog.LevelWarn
			}
			log.LogAttrs(handlers.RequestContext(c), level, "handled update",
				slog.Int64("user_id", chatID),
				slog.String("action", updateAction(c)),
				slog.String("correlation_id", correlationID),
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// updateAction names an update for logs without echoing free text.
func updateAction(c telebot.Context) string {
	if cb := c.Callback(); cb != nil {
		return "callback:" + cb.Data
	}
	if text := c.Text(); strings.HasPrefix(text, "/") {
		return commandName(text)
	}
	return "text"
}
