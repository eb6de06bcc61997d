// Package logger builds the application slog.Logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/nudge-bot/pkg/config"
)

// New creates the application logger and the level variable that controls it.
//
// Records go to stdout and, when logger.file is set, to a rotating file. All
// secrets are masked before they reach any sink. With Sentry enabled, error
// records are also forwarded as Sentry events.
func New(cfg config.Config) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	if parsed, err := config.ParseLevel(cfg.Logger.Level); err == nil {
		level.Set(parsed)
	}

	return NewWithWriter(cfg, level, output(cfg.Logger)), level
}

// NewWithWriter is New with an explicit destination, used by tests.
func NewWithWriter(cfg config.Config, level *slog.LevelVar, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AppEnv == "development"}

	var base slog.Handler
	if strings.EqualFold(cfg.Logger.Format, "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}

	handler := slog.Handler(base)
	if cfg.Sentry.Enabled {
		handler = slogmulti.Fanout(base, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
	}

	return slog.New(NewMaskingHandler(handler)).With(slog.String("env", cfg.AppEnv))
}

func output(cfg config.LoggerConfig) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}

	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	})
}
