package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the reminder bot.
type Config struct {
	AppEnv string `mapstructure:"-"`

	Bot       BotConfig       `mapstructure:"bot"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Server    ServerConfig    `mapstructure:"server"`
}

// BotConfig configures the Telegram transport.
type BotConfig struct {
	Token         string        `mapstructure:"token" validate:"required"`
	Mode          string        `mapstructure:"mode" validate:"oneof=polling webhook"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"min=0"`
	Language      string        `mapstructure:"language" validate:"oneof=ru en"`
	WebhookListen string        `mapstructure:"webhook_listen" validate:"required_if=Mode webhook"`
	WebhookURL    string        `mapstructure:"webhook_url" validate:"required_if=Mode webhook"`
}

// RateLimitConfig throttles inbound updates per chat.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Backend   string        `mapstructure:"backend" validate:"oneof=memory redis"`
	PerUser   RateLimitRule `mapstructure:"per_user"`
	Whitelist []int64       `mapstructure:"whitelist"`
}

// RateLimitRule allows Limit events per Window.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit" validate:"min=0"`
	Window string `mapstructure:"window"`
}

// StorageConfig selects and configures the snapshot backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend" validate:"oneof=file redis postgres"`
	Path        string `mapstructure:"path" validate:"required_if=Backend file"`
	RedisKey    string `mapstructure:"redis_key" validate:"required_if=Backend redis"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Backend postgres"`
}

// SchedulerConfig tunes reminder job restoration.
type SchedulerConfig struct {
	RestoreDelay time.Duration `mapstructure:"restore_delay" validate:"min=0"`
}

// DeliveryConfig selects how reminder messages reach the transport.
type DeliveryConfig struct {
	Mode        string        `mapstructure:"mode" validate:"oneof=direct queue"`
	Concurrency int           `mapstructure:"concurrency" validate:"min=1"`
	MaxRetry    int           `mapstructure:"max_retry" validate:"min=0"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// RedisConfig is shared by the redis snapshot backend and the delivery queue.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
	PoolSize int    `mapstructure:"pool_size" validate:"min=0"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"min=0"`
}

// SentryConfig enables error reporting.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// ServerConfig configures the metrics and health HTTP server.
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// Addr returns the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

// NeedsRedis reports whether any component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Storage.Backend == "redis" ||
		c.Delivery.Mode == "queue" ||
		(c.RateLimit.Enabled && c.RateLimit.Backend == "redis")
}

func setDefaults(set func(key string, value any)) {
	set("bot.token", "")
	set("bot.mode", "polling")
	set("bot.timeout", 10*time.Second)
	set("bot.language", "ru")
	set("bot.webhook_listen", ":8443")
	set("bot.webhook_url", "")

	set("storage.backend", "file")
	set("storage.path", "./data/state.json")
	set("storage.redis_key", "nudge:snapshot")
	set("storage.postgres_dsn", "")

	set("scheduler.restore_delay", 5*time.Second)

	set("delivery.mode", "direct")
	set("delivery.concurrency", 10)
	set("delivery.max_retry", 3)
	set("delivery.timeout", 30*time.Second)

	set("rate_limit.enabled", true)
	set("rate_limit.backend", "memory")
	set("rate_limit.per_user.limit", 30)
	set("rate_limit.per_user.window", "1m")
	set("rate_limit.whitelist", []int64{})

	set("redis.addr", "localhost:6379")
	set("redis.password", "")
	set("redis.db", 0)
	set("redis.pool_size", 10)

	set("logger.level", "info")
	set("logger.format", "json")
	set("logger.file", "")
	set("logger.max_size_mb", 50)
	set("logger.max_backups", 5)
	set("logger.max_age_days", 14)

	set("sentry.enabled", false)
	set("sentry.dsn", "")
	set("sentry.environment", "")
	set("sentry.sample_rate", 1.0)

	set("server.port", "8080")
	set("server.shutdown_timeout", 10*time.Second)
}
