// Package config handles directories, environment overrides and the tag-tier
// table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dori/tasca/internal/filter"
	"github.com/dori/tasca/internal/store"
)

const (
	// AppName is the application directory name.
	AppName = "tasca"

	// TiersFile is the tag-tier table filename inside the config dir.
	TiersFile = "tiers.yaml"
)

// Config holds runtime settings for the application
type Config struct {
	DataDir       string
	DBPath        string
	LockDir       string
	TiersPath     string
	LogLevel      string
	LogEncoding   string
	RemoteTimeout time.Duration
	LockTimeout   time.Duration
}

// Load builds the configuration from defaults, an optional .env file and
// TASCA_* environment variables.
func Load() (*Config, error) {
	// Missing .env is fine; it only provides overrides
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:       store.DefaultDataDir(),
		LogLevel:      "info",
		LogEncoding:   "console",
		RemoteTimeout: 30 * time.Second,
		LockTimeout:   10 * time.Second,
	}

	if dir := os.Getenv("TASCA_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if level := os.Getenv("TASCA_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if enc := os.Getenv("TASCA_LOG_ENCODING"); enc != "" {
		cfg.LogEncoding = enc
	}
	if raw := os.Getenv("TASCA_REMOTE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TASCA_REMOTE_TIMEOUT: %w", err)
		}
		cfg.RemoteTimeout = d
	}
	if raw := os.Getenv("TASCA_LOCK_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TASCA_LOCK_TIMEOUT: %w", err)
		}
		cfg.LockTimeout = d
	}

	cfg.DBPath = filepath.Join(cfg.DataDir, "tasca.db")
	cfg.LockDir = filepath.Join(cfg.DataDir, "locks")
	cfg.TiersPath = filepath.Join(DefaultConfigDir(), TiersFile)
	if path := os.Getenv("TASCA_TIERS_FILE"); path != "" {
		cfg.TiersPath = path
	}

	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// LoadTiers reads the tag-tier table from the configured YAML file. A missing
// file falls back to the built-in ladder. The table is loaded once at startup
// and treated as immutable afterwards.
func (c *Config) LoadTiers() ([]filter.Tier, error) {
	raw, err := os.ReadFile(c.TiersPath)
	if os.IsNotExist(err) {
		return filter.DefaultTiers(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tier table: %w", err)
	}

	var tiers []filter.Tier
	if err := yaml.Unmarshal(raw, &tiers); err != nil {
		return nil, fmt.Errorf("invalid tier table %s: %w", c.TiersPath, err)
	}
	if len(tiers) == 0 {
		return filter.DefaultTiers(), nil
	}

	return tiers, nil
}
