// Package config reads the per-profile config.toml.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon settings. The auth token comes from the
// session layer; everything else is static per profile.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	APIBaseURL  string `toml:"api_base_url"`
	RealtimeURL string `toml:"realtime_url"`
	AuthToken   string `toml:"auth_token"`
	UserID      string `toml:"user_id"`

	PageSize         int `toml:"page_size"`
	SyncIntervalSecs int `toml:"sync_interval_secs"`
	NetTimeoutSecs   int `toml:"net_timeout_secs"`
	StoreTimeoutSecs int `toml:"store_timeout_secs"`
}

// Default returns the baseline config.
func Default() *Config {
	return &Config{
		PageSize:         50,
		SyncIntervalSecs: 45,
		NetTimeoutSecs:   15,
		StoreTimeoutSecs: 5,
	}
}

// SyncInterval returns the periodic reconcile cadence.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSecs) * time.Second
}

// NetTimeout returns the per-request network deadline.
func (c *Config) NetTimeout() time.Duration {
	return time.Duration(c.NetTimeoutSecs) * time.Second
}

// StoreTimeout returns the per-operation store deadline.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSecs) * time.Second
}

// Load reads config from the given path, filling unset fields with
// defaults. Returns an error when the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.SyncIntervalSecs <= 0 {
		cfg.SyncIntervalSecs = 45
	}
	if cfg.NetTimeoutSecs <= 0 {
		cfg.NetTimeoutSecs = 15
	}
	if cfg.StoreTimeoutSecs <= 0 {
		cfg.StoreTimeoutSecs = 5
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
