package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Database != "nexus.db" {
		t.Errorf("Expected Database nexus.db, got %s", cfg.Database)
	}
	if cfg.Sync.Concurrency != 4 {
		t.Errorf("Expected Concurrency 4, got %d", cfg.Sync.Concurrency)
	}
	if cfg.SyncInterval() != 15*time.Minute {
		t.Errorf("Expected 15m sync interval, got %v", cfg.SyncInterval())
	}
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("NEXUS_DATA_DIR", "")
	t.Setenv("NEXUS_ADDR", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"Critical"}, cfg.Alerts.DefectSeverities)
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("NEXUS_ADDR", "")
	t.Setenv("GEMINI_API_KEY", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Server.Addr = "127.0.0.1:9090"
	cfg.Alerts.TaskPriorities = []string{"High", "Medium"}

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", loaded.Server.Addr)
	assert.Equal(t, []string{"High", "Medium"}, loaded.Alerts.TaskPriorities)
	assert.Equal(t, filepath.Join(dir, "nexus.db"), loaded.DatabasePath())
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv("NEXUS_SYNC_INTERVAL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  concurrency: 8\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.Equal(t, "15m", cfg.Sync.Interval)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync: [unterminated"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("NEXUS_ADDR", ":7070")
	t.Setenv("NEXUS_API_TOKEN", "s3cret")
	t.Setenv("NEXUS_SYNC_CONCURRENCY", "2")
	t.Setenv("GEMINI_API_KEY", "gem")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Server.Token)
	assert.Equal(t, 2, cfg.Sync.Concurrency)
	assert.Equal(t, "gem", cfg.Insight.APIKey)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.Interval = "every so often"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.interval")

	cfg = DefaultConfig()
	cfg.HTTP.Timeout = "nope"
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
}

func TestResolveAbsolutePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/nexus"
	assert.Equal(t, "/var/lib/nexus/nexus.db", cfg.DatabasePath())

	cfg.Database = "/tmp/other.db"
	assert.Equal(t, "/tmp/other.db", cfg.DatabasePath())
}
