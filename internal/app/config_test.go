package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "./data/pushrelay.sqlite", cfg.Database.Path)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/metrics", cfg.Monitoring.Prometheus.Endpoint)
	require.True(t, cfg.Monitoring.Health.Enabled)

	require.True(t, cfg.Relay.RateLimit.Enabled)
	require.Equal(t, 100, cfg.Relay.RateLimit.MaxRequests)
	require.Equal(t, time.Minute, cfg.Relay.RateLimit.Window)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "pushrelay", cfg.Database.Postgres.Database)
	require.Equal(t, "relay", cfg.Database.Postgres.Username)

	require.False(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Monitoring.Prometheus.Endpoint)

	require.True(t, cfg.Relay.RateLimit.Enabled)
	require.Equal(t, 250, cfg.Relay.RateLimit.MaxRequests)
	require.Equal(t, 30*time.Second, cfg.Relay.RateLimit.Window)
}
