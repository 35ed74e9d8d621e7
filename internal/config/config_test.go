package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30, cfg.Bot.SaturationLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.StandardWait)
	assert.Equal(t, 60*time.Second, cfg.Queue.RateLimitWait)
}

func TestLoadFromFile(t *testing.T) {
	testChdir(t, t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `bot:
  token: "123:abc"
  saturation_limit: 12
  accept_multi_word_triggers: true
  allow_from: ["42", "alice"]
queue:
  failure_wait: 3s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Bot.Token)
	assert.Equal(t, 12, cfg.Bot.SaturationLimit)
	assert.True(t, cfg.Bot.AcceptMultiWordTriggers)
	assert.Equal(t, []string{"42", "alice"}, cfg.Bot.AllowFrom)
	assert.Equal(t, 3*time.Second, cfg.Queue.FailureWait)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.StandardWait)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("BOTKIT_BOT_TOKEN", "from-env")
	t.Setenv("BOTKIT_BOT_SATURATION_LIMIT", "7")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bot:\n  token: from-file\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, 7, cfg.Bot.SaturationLimit)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BOTKIT_BOT_HANDLE=dotenv_bot\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("BOTKIT_BOT_HANDLE") })

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bot:\n  token: x\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dotenv_bot", cfg.Bot.Handle)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	testChdir(t, t.TempDir())
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero saturation", func(c *Config) { c.Bot.SaturationLimit = 0 }},
		{"negative flood rate", func(c *Config) { c.Bot.FloodRate = -1 }},
		{"flood without burst", func(c *Config) { c.Bot.FloodBurst = 0 }},
		{"zero standard wait", func(c *Config) { c.Queue.StandardWait = 0 }},
		{"failure below standard", func(c *Config) { c.Queue.FailureWait = time.Millisecond }},
		{"rate limit below failure", func(c *Config) { c.Queue.RateLimitWait = time.Second }},
		{"negative delay", func(c *Config) { c.Queue.DispatchDelay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateRetention(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*24*time.Hour, cfg.Database.Retention)
	assert.Equal(t, "@daily", cfg.Database.PruneSchedule)

	cfg.Database.Retention = -time.Hour
	assert.Error(t, cfg.Validate())

	cfg.Database.Retention = time.Hour
	cfg.Database.PruneSchedule = " "
	assert.Error(t, cfg.Validate())

	cfg.Database.Retention = 0
	assert.NoError(t, cfg.Validate())
}
