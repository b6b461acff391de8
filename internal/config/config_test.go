package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	cfg := Load()

	assert.Equal(t, "campuschat", cfg.Database.MongoDB.Database)
	assert.Equal(t, 24*time.Hour, cfg.Spotify.CacheTTL)
	assert.Equal(t, 60*time.Second, cfg.Calls.RingTimeout)
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Len(t, cfg.Calls.STUNServers, 2)
	assert.Empty(t, cfg.Calls.TURNServers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SPOTIFY_CACHE_TTL", "2h")
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg := Load()
	assert.Equal(t, 2*time.Hour, cfg.Spotify.CacheTTL)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORS.AllowedOrigins)
	assert.InDelta(t, 2.5, cfg.Security.RateLimit.RequestsPerSec, 0.001)
}

func TestValidate(t *testing.T) {
	t.Run("development gets a fallback secret", func(t *testing.T) {
		cfg := Load()
		cfg.App.Environment = "development"
		cfg.Security.JWT.Secret = ""
		require.NoError(t, cfg.Validate())
		assert.NotEmpty(t, cfg.Security.JWT.Secret)
	})

	t.Run("production requires a secret", func(t *testing.T) {
		cfg := Load()
		cfg.App.Environment = "production"
		cfg.Security.JWT.Secret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive ttl", func(t *testing.T) {
		cfg := Load()
		cfg.Security.JWT.Secret = "s"
		cfg.Spotify.CacheTTL = 0
		assert.ErrorContains(t, cfg.Validate(), "SPOTIFY_CACHE_TTL")
	})

	t.Run("unknown store driver", func(t *testing.T) {
		cfg := Load()
		cfg.Security.JWT.Secret = "s"
		cfg.Store.Driver = "sqlite"
		assert.ErrorContains(t, cfg.Validate(), "STORE_DRIVER")
	})
}
