package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	DBPath     string
	DataFolder string

	HelperURL  string
	HelperPort string

	SyncURL string

	CloudDir        string
	CloudSyncPeriod time.Duration

	// StorageModeInternal disables disk mirroring: entities live only in
	// the local database.
	StorageModeInternal bool

	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration from environment variables and returns a
// Config struct. If a .env file exists in the current directory or a
// parent, it is loaded first; variables already set take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		DBPath:     getEnv("DB_PATH", "./data/scrapyard.db"),
		DataFolder: getEnv("DATA_FOLDER", "./data/scrapbook"),
		HelperURL:  getEnv("HELPER_URL", "http://localhost:20202"),
		HelperPort: getEnv("HELPER_PORT", "20202"),
		SyncURL:    getEnv("SYNC_URL", ""),
		CloudDir:   getEnv("CLOUD_DIR", ""),
		LogFormat:  getEnv("LOG_FORMAT", "text"),
	}

	periodStr := getEnv("CLOUD_SYNC_PERIOD_MINUTES", "60")
	period, err := strconv.Atoi(periodStr)
	if err != nil {
		return nil, fmt.Errorf("CLOUD_SYNC_PERIOD_MINUTES must be a valid integer: %w", err)
	}
	if period <= 0 {
		return nil, fmt.Errorf("CLOUD_SYNC_PERIOD_MINUTES must be greater than 0")
	}
	cfg.CloudSyncPeriod = time.Duration(period) * time.Minute

	internalStr := getEnv("STORAGE_MODE_INTERNAL", "false")
	internal, err := strconv.ParseBool(internalStr)
	if err != nil {
		return nil, fmt.Errorf("STORAGE_MODE_INTERNAL must be a boolean: %w", err)
	}
	cfg.StorageModeInternal = internal

	if err := cfg.parseLogLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

func (c *Config) parseLogLevel(level string) error {
	switch level {
	case "debug":
		c.LogLevel = slog.LevelDebug
	case "info":
		c.LogLevel = slog.LevelInfo
	case "warn":
		c.LogLevel = slog.LevelWarn
	case "error":
		c.LogLevel = slog.LevelError
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	return nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
