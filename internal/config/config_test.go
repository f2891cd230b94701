package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServicePort)
	assert.Equal(t, "http://localhost:8000", cfg.IndexBackendURL)
	assert.Equal(t, 30*time.Second, cfg.IndexTimeout)
	assert.Equal(t, 30*time.Second, cfg.EntryCacheTTL)
	assert.True(t, cfg.CookieSecure)
	assert.False(t, cfg.AuthDebugFallback)
	assert.Equal(t, int64(25*1024*1024), cfg.GetMaxUploadBytes())
	assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
	assert.Equal(t, "root:@tcp(localhost:4000)/docsync?charset=utf8mb4&parseTime=True&loc=UTC", cfg.GetDSN())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("INDEX_BACKEND_URL", "http://backend:8000/")
	t.Setenv("INDEX_TIMEOUT", "5s")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("LOG_FORMAT", "TEXT")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8000", cfg.IndexBackendURL)
	assert.Equal(t, 5*time.Second, cfg.IndexTimeout)
	assert.False(t, cfg.CookieSecure)
	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("INDEX_TIMEOUT", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INDEX_TIMEOUT")
}

func TestValidate(t *testing.T) {
	base := Config{
		JWTSecret:       "s",
		IndexBackendURL: "http://x",
		IndexTimeout:    time.Second,
		MaxUploadMB:     1,
		LogFormat:       "json",
		LogLevel:        "info",
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.LogFormat = "xml"
	assert.Error(t, bad.Validate())

	bad = base
	bad.LogLevel = "loud"
	assert.Error(t, bad.Validate())

	bad = base
	bad.IndexTimeout = 0
	assert.Error(t, bad.Validate())
}
