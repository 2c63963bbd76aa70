package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vjranagit/sleepfilter/internal/logger"
	"github.com/vjranagit/sleepfilter/pkg/storage"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Dataset DatasetConfig `toml:"dataset"`
	Storage StorageConfig `toml:"storage"`
	Log     logger.Config `toml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string   `toml:"listen_addr"`
	Timeout    Duration `toml:"timeout"`
	CacheSize  int      `toml:"cache_size"`
}

// DatasetConfig describes the dataset to load
type DatasetConfig struct {
	Path     string `toml:"path"`
	Timezone string `toml:"timezone"`
	ListSize int    `toml:"list_size"`
}

// StorageConfig holds snapshot storage configuration
type StorageConfig struct {
	Path             string `toml:"path"`
	CompressionLevel int    `toml:"compression_level"`
	EnableSnapshots  bool   `toml:"enable_snapshots"`
}

// Duration is a time.Duration that decodes from TOML strings like "30s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultConfig returns default configuration with environment overrides applied
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr: ":9090",
			Timeout:    Duration{30 * time.Second},
			CacheSize:  64,
		},
		Dataset: DatasetConfig{
			Path:     "./sleep.json",
			Timezone: "Local",
			ListSize: 50,
		},
		Storage: StorageConfig{
			Path:             "./data",
			CompressionLevel: 3,
			EnableSnapshots:  true,
		},
		Log: logger.NewConfig(),
	}
	cfg.applyEnv()
	return cfg
}

// Load reads a TOML file over the defaults. Environment variables win over both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.ListenAddr = getEnv("SLEEPFILTER_LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.CacheSize = getEnvInt("SLEEPFILTER_CACHE_SIZE", c.Server.CacheSize)
	c.Dataset.Path = getEnv("SLEEPFILTER_DATASET", c.Dataset.Path)
	c.Dataset.Timezone = getEnv("SLEEPFILTER_TIMEZONE", c.Dataset.Timezone)
	c.Dataset.ListSize = getEnvInt("SLEEPFILTER_LIST_SIZE", c.Dataset.ListSize)
	c.Storage.Path = getEnv("SLEEPFILTER_STORAGE_PATH", c.Storage.Path)
	c.Storage.CompressionLevel = getEnvInt("SLEEPFILTER_COMPRESSION_LEVEL", c.Storage.CompressionLevel)
	c.Storage.EnableSnapshots = getEnvBool("SLEEPFILTER_ENABLE_SNAPSHOTS", c.Storage.EnableSnapshots)
	c.Log.Level = getEnv("SLEEPFILTER_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("SLEEPFILTER_LOG_FORMAT", c.Log.Format)
}

// Location resolves the dataset time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Dataset.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Dataset.Timezone, err)
	}
	return loc, nil
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig() *storage.Config {
	loc, err := c.Location()
	if err != nil {
		loc = time.Local
	}
	return &storage.Config{
		Path:             c.Storage.Path,
		CompressionLevel: c.Storage.CompressionLevel,
		Location:         loc,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Server.CacheSize < 1 {
		return fmt.Errorf("server cache size must be at least 1")
	}

	if c.Dataset.Path == "" {
		return fmt.Errorf("dataset path is required")
	}

	if c.Dataset.ListSize < 1 {
		return fmt.Errorf("list size must be at least 1")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Storage.EnableSnapshots && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required when snapshots are enabled")
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
