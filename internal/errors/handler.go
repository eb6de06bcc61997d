package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/nudge-bot/pkg/logger"
	"github.com/Proton-105/nudge-bot/pkg/metrics"
)

// CodeUnknown labels errors that are not AppErrors.
const CodeUnknown = "unknown"

const defaultUserMessage = "Произошла ошибка. Попробуйте позже"

// Report is what Handle learned about an error.
type Report struct {
	Code        string
	Severity    Severity
	Retryable   bool
	UserMessage string
}

// Handler logs application errors, counts them and forwards severe ones to Sentry.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{log: log, sentryEnabled: sentryEnabled}
}

// Handle reports err once and classifies it. Plain errors are treated as
// high severity and never retryable.
func (h *Handler) Handle(ctx context.Context, err error) Report {
	if err == nil {
		return Report{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	report := Report{
		Code:        CodeUnknown,
		Severity:    SeverityHigh,
		UserMessage: defaultUserMessage,
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		report.Code = appErr.Code
		report.Severity = appErr.Severity
		report.Retryable = appErr.Retryable
		if appErr.UserMessage != "" {
			report.UserMessage = appErr.UserMessage
		}
	}

	attrs := []slog.Attr{
		slog.String("code", report.Code),
		slog.String("severity", string(report.Severity)),
		slog.Bool("retryable", report.Retryable),
		slog.Any("error", err),
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		attrs = append(attrs, slog.String("correlation_id", id))
	}

	level := slog.LevelError
	if report.Severity == SeverityLow {
		level = slog.LevelWarn
	}
	h.log.LogAttrs(ctx, level, "application error", attrs...)

	metrics.RecordError(report.Code, string(report.Severity))

	if h.sentryEnabled && (report.Severity == SeverityHigh || report.Severity == SeverityCritical) {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("code", report.Code)
			scope.SetTag("severity", string(report.Severity))
			if id := logger.CorrelationIDFromContext(ctx); id != "" {
				scope.SetTag("correlation_id", id)
			}
			sentry.CaptureException(err)
		})
	}

	return report
}
