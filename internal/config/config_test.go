package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	ctx := context.Background()
	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)

	assert.Equal(t, 20, cfg.IndexDefaults.MaxInitialRequests)
	assert.Equal(t, 1000, cfg.IndexDefaults.BatchSize)
	assert.Equal(t, 24, cfg.IndexDefaults.StaleTTLHours)

	assert.Equal(t, 16, cfg.Cache.MaxEntries)
	assert.Equal(t, 600, cfg.Cache.IdleTimeoutSecs)
	assert.Equal(t, 600*time.Second, cfg.Cache.IdleTimeout())

	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadRuntimeOverrides(t *testing.T) {
	ctx := context.Background()
	overrides := map[string]any{
		"server": map[string]any{
			"port": 9000,
			"host": "0.0.0.0",
		},
		"logging": map[string]any{
			"level": "debug",
		},
	}

	cfg, err := Load(ctx, overrides)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Non-overridden values remain default.
	assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)
}

func TestLoadEnvOverrides(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, os.Setenv("GONIMBUS_SERVER_PORT", "3000"))
	require.NoError(t, os.Setenv("GONIMBUS_LOGGING_LEVEL", "warn"))
	defer func() {
		_ = os.Unsetenv("GONIMBUS_SERVER_PORT")
		_ = os.Unsetenv("GONIMBUS_LOGGING_LEVEL")
	}()

	cfg, err := Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadPrecedenceRuntimeOverEnv(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, os.Setenv("GONIMBUS_SERVER_PORT", "4000"))
	defer func() { _ = os.Unsetenv("GONIMBUS_SERVER_PORT") }()

	overrides := map[string]any{"server": map[string]any{"port": 5000}}
	cfg, err := Load(ctx, overrides)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
}

func TestGetConfigReturnsLoaded(t *testing.T) {
	ctx := context.Background()
	cfg, err := Load(ctx)
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestPricingDefaults(t *testing.T) {
	ctx := context.Background()
	cfg, err := Load(ctx)
	require.NoError(t, err)

	assert.Greater(t, cfg.Pricing.GetPerThousand, 0.0)
	assert.Greater(t, cfg.Pricing.PutPerThousand, 0.0)
}
