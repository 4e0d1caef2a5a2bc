package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Monitor.SweepInterval())
	assert.Equal(t, 10*time.Second, cfg.Monitor.SubmitBuffer())
	assert.Equal(t, 5, cfg.Realtime.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Realtime.ReconnectDelay())
	assert.Equal(t, 50, cfg.Notifications.MaxRetained)
	assert.NotEmpty(t, cfg.Backend.BaseURL)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  base_url: https://api.pharm.example/api
monitor:
  sweep_interval_sec: 30
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.pharm.example/api", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Monitor.SweepInterval())
	// Untouched keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Monitor.SubmitBuffer())
	assert.Equal(t, 50, cfg.Notifications.MaxRetained)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg.Monitor.SweepIntervalSec = 15
	cfg.Backend.RealtimeURL = "wss://rt.pharm.example/events"

	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15, got.Monitor.SweepIntervalSec)
	assert.Equal(t, "wss://rt.pharm.example/events", got.Backend.RealtimeURL)
}
