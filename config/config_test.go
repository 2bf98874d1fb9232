package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	root := t.TempDir()
	t.Setenv("AEGIS_DATA_ROOT", root)

	cfg := Load()

	assert.Equal(t, time.Hour, cfg.ScanInterval)
	assert.Equal(t, 5*time.Second, cfg.SensorWaitInterval)
	assert.Equal(t, 1000, cfg.HistoryCapacity)
	assert.Equal(t, filepath.Join(root, "Quarantine"), cfg.QuarantineDir)
	assert.Equal(t, filepath.Join(root, "aegis.db"), cfg.DBPath)
	assert.True(t, cfg.Settings.RealtimeProtection)
	assert.False(t, cfg.Settings.AutoQuarantine)
	assert.Empty(t, cfg.NATSURL)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("AEGIS_DATA_ROOT", t.TempDir())
	t.Setenv("AEGIS_SCAN_INTERVAL", "15m")
	t.Setenv("AEGIS_WORKER_POOL_SIZE", "2")
	t.Setenv("AEGIS_AUTO_QUARANTINE", "true")
	t.Setenv("AEGIS_MEMORY_SCANNING", "false")
	t.Setenv("AEGIS_NATS_URL", "nats://127.0.0.1:4222")

	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.ScanInterval)
	assert.Equal(t, 2, cfg.WorkerPoolSize)
	assert.True(t, cfg.Settings.AutoQuarantine)
	assert.False(t, cfg.Settings.MemoryScanning)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("AEGIS_DATA_ROOT", t.TempDir())
	t.Setenv("AEGIS_SCAN_INTERVAL", "soon")
	t.Setenv("AEGIS_WORKER_POOL_SIZE", "many")
	t.Setenv("AEGIS_REALTIME", "maybe")

	cfg := Load()

	assert.Equal(t, time.Hour, cfg.ScanInterval)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.True(t, cfg.Settings.RealtimeProtection)
}

func TestValidate(t *testing.T) {
	t.Setenv("AEGIS_DATA_ROOT", t.TempDir())

	cfg := Load()
	cfg.WorkerPoolSize = 0
	cfg.ScanInterval = 0
	cfg.QuarantineDir = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker pool size")
	assert.Contains(t, err.Error(), "scan interval")
	assert.Contains(t, err.Error(), "quarantine directory")
}
