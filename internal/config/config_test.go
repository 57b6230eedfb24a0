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
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, "local", cfg.Queue.Backend)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "glm", cfg.Text.Provider)
	assert.Equal(t, "glm-4", cfg.GLM.Model)
	assert.Equal(t, 300, cfg.Video.MaxWaitSeconds)
	assert.Equal(t, 5, cfg.Video.PollIntervalSeconds)
	assert.Equal(t, 30, cfg.WebSocket.PingIntervalSeconds)
	assert.Equal(t, 60, cfg.Gemini.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "10")
	t.Setenv("QUEUE_BACKEND", "asynq")
	t.Setenv("VIDEO_MAX_WAIT", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window())
	assert.Equal(t, "asynq", cfg.Queue.Backend)
	assert.Equal(t, 60, cfg.Video.MaxWaitSeconds)
}

func TestLoadRefusesDefaultSecretOutsideDevelopment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrDefaultJWTSecret)

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "a-real-secret", cfg.JWT.Secret)
}

func TestLoadAllowsDefaultSecretInDevelopment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_ENV", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultJWTSecret, cfg.JWT.Secret)
}

func TestReadSecretFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "glm_key")
	require.NoError(t, os.WriteFile(path, []byte("  secret-key\n"), 0o600))

	t.Setenv("GLM_API_KEY", "")
	t.Setenv("GLM_API_KEY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.GLM.APIKey)
}

func TestReadSecretPrefersDirectValue(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("IMAGE_API_KEY", "direct")
	t.Setenv("IMAGE_API_KEY_FILE", "/does/not/exist")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "direct", cfg.Image.APIKey)
}

// chdir keeps a stray config.yaml or .env in the working tree out of Load.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
