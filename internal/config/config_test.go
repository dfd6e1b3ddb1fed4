package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_DIR", filepath.Join(t.TempDir(), "logs"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, DefaultCacheCapacity, cfg.CacheCapacity)
	assert.Equal(t, CacheBackendMemory, cfg.CacheBackend)
	assert.False(t, cfg.CompensateOnFailure)
	assert.DirExists(t, cfg.LogDir)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_DIR", t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("API_BASE_URL", "https://stories.example.com/api/v1/")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("CACHE_CAPACITY", "12")
	t.Setenv("API_RATE_LIMIT", "0")
	t.Setenv("COMPENSATE_ON_FAILURE", "yes")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "https://stories.example.com/api/v1", cfg.APIBaseURL)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 12, cfg.CacheCapacity)
	assert.Zero(t, cfg.APIRateLimit)
	assert.True(t, cfg.CompensateOnFailure)
}

func TestLoad_BadDurationFallsBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LOG_DIR", t.TempDir())
	t.Setenv("SESSION_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionTTL, cfg.SessionTTL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			APIBaseURL:    DefaultAPIBaseURL,
			CacheTTL:      time.Minute,
			CacheCapacity: 1,
			CacheBackend:  CacheBackendMemory,
		}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.APIBaseURL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.CacheBackend = CacheBackendRedis
	assert.Error(t, cfg.Validate(), "redis without url")
	cfg.RedisURL = "redis://localhost:6379/0"
	assert.NoError(t, cfg.Validate())

	cfg = base()
	cfg.CacheBackend = "memcached"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.CacheCapacity = 0
	assert.Error(t, cfg.Validate())
}
