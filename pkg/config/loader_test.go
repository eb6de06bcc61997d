package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_DefaultsAndEnv(t *testing.T) {
	t.Setenv("NUDGE_BOT_TOKEN", "123:abc")
	t.Setenv("NUDGE_SCHEDULER_RESTORE_DELAY", "7s")

	cfg, v, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), "test")
	require.NoError(t, err)
	require.NotNil(t, v)

	assert.Equal(t, "test", cfg.AppEnv)
	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, "polling", cfg.Bot.Mode)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 7*time.Second, cfg.Scheduler.RestoreDelay)
	assert.Equal(t, "direct", cfg.Delivery.Mode)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "production.yaml")
	content := `
bot:
  token: "42:xyz"
  language: en
storage:
  backend: redis
  redis_key: test:snapshot
delivery:
  mode: queue
logger:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, _, err := LoadFile(path, "production")
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.Bot.Language)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "test:snapshot", cfg.Storage.RedisKey)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoadFile_ValidationErrors(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing token", env: map[string]string{}},
		{name: "unknown backend", env: map[string]string{"NUDGE_BOT_TOKEN": "t", "NUDGE_STORAGE_BACKEND": "s3"}},
		{name: "postgres without dsn", env: map[string]string{"NUDGE_BOT_TOKEN": "t", "NUDGE_STORAGE_BACKEND": "postgres"}},
		{name: "bad delivery mode", env: map[string]string{"NUDGE_BOT_TOKEN": "t", "NUDGE_DELIVERY_MODE": "carrier-pigeon"}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("NUDGE_BOT_TOKEN", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, _, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml"), "test")
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
