// Package config loads the daemon configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	apperrors "github.com/mlefevre/brokersync/internal/errors"
)

// Config is the full daemon configuration.
type Config struct {
	DataDir string

	// Remote system of record
	RecordAPIURL   string
	RecordAPIToken string
	RecordTable    string

	// Object store
	S3Endpoint       string
	S3Bucket         string
	S3AccessKey      string
	S3SecretKey      string
	S3Region         string
	S3ForcePathStyle bool

	// Engine timing
	SyncInterval   time.Duration
	ReconnectDelay time.Duration
	AutosaveDelay  time.Duration
	ProbeInterval  time.Duration

	LogLevel string

	// Status feed for the host UI shell
	FeedAddr string
}

// Load reads configuration from BROKERSYNC_* environment variables,
// applying defaults for everything optional.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:          getenv("BROKERSYNC_DATA_DIR", defaultDataDir()),
		RecordAPIURL:     os.Getenv("BROKERSYNC_RECORD_API_URL"),
		RecordAPIToken:   os.Getenv("BROKERSYNC_RECORD_API_TOKEN"),
		RecordTable:      getenv("BROKERSYNC_RECORD_TABLE", "estimations"),
		S3Endpoint:       os.Getenv("BROKERSYNC_S3_ENDPOINT"),
		S3Bucket:         getenv("BROKERSYNC_S3_BUCKET", "estimation-photos"),
		S3AccessKey:      os.Getenv("BROKERSYNC_S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("BROKERSYNC_S3_SECRET_KEY"),
		S3Region:         getenv("BROKERSYNC_S3_REGION", "us-east-1"),
		S3ForcePathStyle: getbool("BROKERSYNC_S3_FORCE_PATH_STYLE", false),
		SyncInterval:     getduration("BROKERSYNC_SYNC_INTERVAL", 30*time.Second),
		ReconnectDelay:   getduration("BROKERSYNC_RECONNECT_DELAY", 1*time.Second),
		AutosaveDelay:    getduration("BROKERSYNC_AUTOSAVE_DELAY", 2*time.Second),
		ProbeInterval:    getduration("BROKERSYNC_PROBE_INTERVAL", 10*time.Second),
		LogLevel:         getenv("BROKERSYNC_LOG_LEVEL", "INFO"),
		FeedAddr:         getenv("BROKERSYNC_FEED_ADDR", "localhost:8090"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.RecordAPIURL == "" {
		return apperrors.New(apperrors.ErrConfig, "BROKERSYNC_RECORD_API_URL is required")
	}
	if c.RecordAPIToken == "" {
		return apperrors.New(apperrors.ErrConfig, "BROKERSYNC_RECORD_API_TOKEN is required")
	}
	if c.S3Endpoint == "" {
		return apperrors.New(apperrors.ErrConfig, "BROKERSYNC_S3_ENDPOINT is required")
	}
	if c.SyncInterval <= 0 || c.ReconnectDelay <= 0 {
		return apperrors.New(apperrors.ErrConfig, "sync intervals must be positive")
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".brokersync"
	}
	return fmt.Sprintf("%s/.brokersync", home)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
