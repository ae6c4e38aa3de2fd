package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Hostname)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultIdleTimeout, cfg.Server.IdleTimeoutSeconds)
	assert.Equal(t, DefaultPoolSize, cfg.Workers.PoolSize)
	assert.Equal(t, DefaultWorkerPort, cfg.Workers.APIPort)
	assert.Equal(t, DefaultDevToken, cfg.Security.DevToken)
	assert.False(t, cfg.IsProduction())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TES_DEV_TOKEN", "secret-token")
	t.Setenv("NODE_ENV", "production")
	t.Setenv("WORKER_API_PORT", "3100")
	t.Setenv("IDLE_TIMEOUT", "30")
	t.Setenv("LOG_REQUESTS", "true")

	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.Security.DevToken)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 3100, cfg.Workers.APIPort)
	assert.Equal(t, 30, cfg.Server.IdleTimeoutSeconds)
	assert.True(t, cfg.Server.LogRequests)
}

func TestResolvePortPriority(t *testing.T) {
	t.Setenv("BUN_PORT", "4001")
	t.Setenv("PORT", "4002")
	t.Setenv("NODE_PORT", "4003")

	// CLI flag wins outright, including an explicit 0 (random port)
	assert.Equal(t, 9999, ResolvePort(9999, 3002))
	assert.Equal(t, 0, ResolvePort(0, 3002))

	// BUN_PORT > PORT > NODE_PORT
	assert.Equal(t, 4001, ResolvePort(-1, 3002))
	t.Setenv("BUN_PORT", "")
	assert.Equal(t, 4002, ResolvePort(-1, 3002))
	t.Setenv("PORT", "")
	assert.Equal(t, 4003, ResolvePort(-1, 3002))
	t.Setenv("NODE_PORT", "")
	assert.Equal(t, 3002, ResolvePort(-1, 3002))
	assert.Equal(t, DefaultPort, ResolvePort(-1, 0))
}

func TestSnapshotRedactsToken(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	cfg.Security.DevToken = "super-secret"

	out, err := Snapshot(cfg)
	require.NoError(t, err)

	assert.False(t, strings.Contains(out, "super-secret"))
	assert.True(t, strings.Contains(out, "[redacted]"))
	assert.True(t, strings.Contains(out, "[server]"))
}
