package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func loadInTempDir(t *testing.T) (*Config, error) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
	return Load()
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadInTempDir(t)
	require.NoError(t, err)

	require.Equal(t, "./data/scrapyard.db", cfg.DBPath)
	require.Equal(t, "./data/scrapbook", cfg.DataFolder)
	require.Equal(t, "http://localhost:20202", cfg.HelperURL)
	require.Equal(t, "20202", cfg.HelperPort)
	require.Empty(t, cfg.SyncURL)
	require.Empty(t, cfg.CloudDir)
	require.Equal(t, 60*time.Minute, cfg.CloudSyncPeriod)
	require.False(t, cfg.StorageModeInternal)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Equal(t, "text", cfg.LogFormat)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HELPER_URL", "http://helper.internal:9999")
	t.Setenv("CLOUD_SYNC_PERIOD_MINUTES", "5")
	t.Setenv("STORAGE_MODE_INTERNAL", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadInTempDir(t)
	require.NoError(t, err)

	require.Equal(t, "http://helper.internal:9999", cfg.HelperURL)
	require.Equal(t, 5*time.Minute, cfg.CloudSyncPeriod)
	require.True(t, cfg.StorageModeInternal)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadRejectsInvalidPeriod(t *testing.T) {
	t.Setenv("CLOUD_SYNC_PERIOD_MINUTES", "soon")
	_, err := loadInTempDir(t)
	require.Error(t, err)

	t.Setenv("CLOUD_SYNC_PERIOD_MINUTES", "0")
	_, err = loadInTempDir(t)
	require.Error(t, err)
}

func TestLoadRejectsInvalidStorageMode(t *testing.T) {
	t.Setenv("STORAGE_MODE_INTERNAL", "maybe")
	_, err := loadInTempDir(t)
	require.Error(t, err)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	_, err := loadInTempDir(t)
	require.Error(t, err)
}
