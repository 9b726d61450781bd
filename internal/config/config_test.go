package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := defaults(t)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, int64(1<<20), cfg.MaxFrameBytes)
	assert.Equal(t, int64(256<<10), cfg.MaxBodyBytes)
	assert.Equal(t, 64, cfg.MaxPendingPerNode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_PENDING_PER_NODE", "8")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "5")

	cfg := defaults(t)

	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, 8, cfg.MaxPendingPerNode)
	assert.Equal(t, "5s", cfg.RequestTimeout().String())
}

func TestValidate(t *testing.T) {
	t.Run("accepts defaults", func(t *testing.T) {
		assert.NoError(t, defaults(t).Validate())
	})

	t.Run("rejects body cap above frame cap", func(t *testing.T) {
		cfg := defaults(t)
		cfg.MaxBodyBytes = cfg.MaxFrameBytes + 1
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive limits", func(t *testing.T) {
		for _, mutate := range []func(*Config){
			func(c *Config) { c.MaxFrameBytes = 0 },
			func(c *Config) { c.MaxPendingPerNode = 0 },
			func(c *Config) { c.RequestTimeoutSeconds = -1 },
			func(c *Config) { c.SessionTTLSeconds = 0 },
			func(c *Config) { c.PairingCodeTTLSeconds = 0 },
			func(c *Config) { c.PairRateLimitPerMin = 0 },
		} {
			cfg := defaults(t)
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		}
	})
}
