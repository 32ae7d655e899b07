package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, filepath.Join("data", "xpromo.db"), cfg.Database.Path)
	assert.Equal(t, "https://api.twitter.com/2", cfg.Twitter.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Twitter.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Pool.WriteLockDuration)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.ProcessEvery)
	assert.Equal(t, 5, cfg.Scheduler.MaxConcurrency)
	assert.Equal(t, 3*time.Second, cfg.Scheduler.ReplyStagger)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("XPROMO_DB_PATH", "/tmp/test.db")
	t.Setenv("XPROMO_TEXTGEN_API_KEY", "sk-test")
	t.Setenv("XPROMO_REQUESTS_PER_MINUTE", "30")
	t.Setenv("XPROMO_PROCESS_EVERY", "5s")
	t.Setenv("XPROMO_MAX_CONCURRENCY", "2")
	t.Setenv("XPROMO_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Equal(t, "sk-test", cfg.TextGen.APIKey)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.ProcessEvery)
	assert.Equal(t, 2, cfg.Scheduler.MaxConcurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("XPROMO_REQUESTS_PER_MINUTE", "not-a-number")
	t.Setenv("XPROMO_PROCESS_EVERY", "-5s")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.ProcessEvery)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  path: /var/lib/xpromo/xpromo.db
scheduler:
  process_every: 20s
  max_concurrency: 3
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "/var/lib/xpromo/xpromo.db", cfg.Database.Path)
	assert.Equal(t, 20*time.Second, cfg.Scheduler.ProcessEvery)
	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrency)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Untouched sections keep defaults
	assert.Equal(t, "https://api.twitter.com/2", cfg.Twitter.BaseURL)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"empty base url", func(c *Config) { c.Twitter.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.Twitter.Timeout = 0 }},
		{"negative retries", func(c *Config) { c.Twitter.MaxRetries = -1 }},
		{"zero write lock", func(c *Config) { c.Pool.WriteLockDuration = 0 }},
		{"zero sweep interval", func(c *Config) { c.Scheduler.ProcessEvery = 0 }},
		{"zero concurrency", func(c *Config) { c.Scheduler.MaxConcurrency = 0 }},
		{"negative stagger", func(c *Config) { c.Scheduler.ReplyStagger = -time.Second }},
		{"zero rpm", func(c *Config) { c.RateLimit.RequestsPerMinute = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"db":         "/tmp/flags.db",
		"log-level":  "error",
		"rate-limit": 15,
	})

	assert.Equal(t, "/tmp/flags.db", cfg.Database.Path)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 15, cfg.RateLimit.RequestsPerMinute)
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Scheduler.ReplyStagger = 7 * time.Second
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, 7*time.Second, loaded.Scheduler.ReplyStagger)
}
