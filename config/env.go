package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables overriding the app section.
const (
	EnvConfigPath  = "FUSION_CONFIG"
	EnvJournalDir  = "FUSION_JOURNAL_DIR"
	EnvDBPath      = "FUSION_DB_PATH"
	EnvHTTPAddr    = "FUSION_HTTP_ADDR"
	EnvFeed        = "FUSION_FEED"
	EnvModelPath   = "FUSION_MODEL_PATH"
	EnvFeedTimeout = "FUSION_FEED_TIMEOUT"
)

// LoadDotEnv loads a .env file if present. Missing files are not an error.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// ConfigPathFromEnv returns the config path set in the environment, or fallback.
func ConfigPathFromEnv(fallback string) string {
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return fallback
}

// WithEnv returns a copy of c whose app section is overridden by environment variables.
func (c Config) WithEnv() Config {
	if v := os.Getenv(EnvJournalDir); v != "" {
		c.App.JournalDir = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.App.DBPath = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.App.HTTPAddr = v
	}
	if v := os.Getenv(EnvFeed); v != "" {
		c.App.Feed = v
	}
	if v := os.Getenv(EnvModelPath); v != "" {
		c.App.RegimeModelPath = v
	}
	if v := os.Getenv(EnvFeedTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.App.FeedTimeout = d
		}
	}
	return c
}
