package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "gpt-3.5-turbo", cfg.Tone.Model)
	assert.Equal(t, 150, cfg.Tone.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Tone.Temperature, 1e-9)
	assert.Equal(t, 10*time.Second, cfg.Tone.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Chat.AutoReplyMin)
	assert.Equal(t, 5*time.Second, cfg.Chat.AutoReplyMax)
	assert.True(t, cfg.Chat.AutoReply)
	assert.Zero(t, cfg.Auth.TokenTTL)
	assert.Empty(t, cfg.RateLimitWhitelist)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("AUTO_REPLY_ENABLED", "false")
	t.Setenv("TONE_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.1, 192.168.0.0/16")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.False(t, cfg.Chat.AutoReply)
	assert.Equal(t, 3*time.Second, cfg.Tone.Timeout)
	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.RateLimitWhitelist)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messenger.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = "4000"

[tone]
model = "gpt-4o-mini"

[chat]
auto_reply_min = "1s"
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "4001")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4001", cfg.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.Tone.Model)
	assert.Equal(t, time.Second, cfg.Chat.AutoReplyMin)
}

func TestValidate(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)

	pg := *cfg
	pg.Store.Backend = BackendPostgres
	assert.Error(t, pg.Validate())

	unknown := *cfg
	unknown.Store.Backend = "cassandra"
	assert.Error(t, unknown.Validate())

	prod := *cfg
	prod.Env = "production"
	prod.Store.RedisURL = "redis://localhost:6379"
	assert.Error(t, prod.Validate(), "default secret must be rejected")

	prod.Auth.JWTSecret = "a-real-secret"
	assert.NoError(t, prod.Validate())

	delays := *cfg
	delays.Chat.AutoReplyMin = 5 * time.Second
	delays.Chat.AutoReplyMax = time.Second
	assert.Error(t, delays.Validate())
}
