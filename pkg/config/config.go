// Package config loads and persists the tracker configuration,
// including the configured server list written back after discovery.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"btctrack/pkg/models"
)

// Config holds all tracker configuration.
type Config struct {
	// DefaultTLS is the TLS preference for servers whose transport is
	// ambiguous.
	DefaultTLS bool `toml:"default_tls"`

	// CallTimeoutSeconds bounds connects and individual calls.
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`

	// UpdateIntervalSeconds paces continuous monitoring.
	UpdateIntervalSeconds int `toml:"update_interval_seconds"`

	// Addresses are watched by the CLI's status and continuous modes.
	Addresses []string `toml:"addresses"`

	// Servers is the user-persisted (configured-tier) server list.
	Servers []models.Endpoint `toml:"servers"`

	Discovery DiscoveryConfig `toml:"discovery"`
	API       APIConfig       `toml:"api"`
}

// DiscoveryConfig controls peer discovery and health probing.
type DiscoveryConfig struct {
	Enabled                bool `toml:"enabled"`
	MaxServers             int  `toml:"max_servers"`
	ProbeConcurrency       int  `toml:"probe_concurrency"`
	RefreshIntervalSeconds int  `toml:"refresh_interval_seconds"`
	StaleAfterSeconds      int  `toml:"stale_after_seconds"`
}

// APIConfig controls the REST API server.
type APIConfig struct {
	Listen      string   `toml:"listen"`
	APIKey      string   `toml:"api_key"`
	RatePerMin  int      `toml:"rate_limit_per_minute"`
	RateBurst   int      `toml:"rate_limit_burst"`
	CORSOrigins []string `toml:"cors_origins"`
}

// Default returns a configuration usable out of the box; the seed
// server tier keeps queries working before any servers are configured.
func Default() Config {
	return Config{
		DefaultTLS:            true,
		CallTimeoutSeconds:    10,
		UpdateIntervalSeconds: 60,
		Discovery: DiscoveryConfig{
			Enabled:                true,
			MaxServers:             50,
			ProbeConcurrency:       8,
			RefreshIntervalSeconds: 300,
			StaleAfterSeconds:      600,
		},
		API: APIConfig{
			Listen:      "127.0.0.1:8000",
			RatePerMin:  120,
			RateBurst:   20,
			CORSOrigins: []string{"*"},
		},
	}
}

// Load reads the config file at path, falling back to defaults when the
// file does not exist.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories as
// needed. Callers replace cfg.Servers with the registry's persistable
// list before saving.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	return toml.NewEncoder(f).Encode(cfg)
}

// CallTimeout returns the per-call bound as a duration.
func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// UpdateInterval returns the monitoring interval as a duration.
func (c Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalSeconds) * time.Second
}

// RefreshInterval returns the background refresh pace as a duration.
func (d DiscoveryConfig) RefreshInterval() time.Duration {
	return time.Duration(d.RefreshIntervalSeconds) * time.Second
}

// StaleAfter returns the probe staleness threshold as a duration.
func (d DiscoveryConfig) StaleAfter() time.Duration {
	return time.Duration(d.StaleAfterSeconds) * time.Second
}
