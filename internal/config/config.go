// Package config defines the plugin host configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level host configuration.
type Config struct {
	Plugins  PluginsConfig `json:"plugins" yaml:"plugins"`
	Search   SearchConfig  `json:"search" yaml:"search"`
	Bridge   BridgeConfig  `json:"bridge" yaml:"bridge"`
	DataDir  string        `json:"data_dir" yaml:"data_dir"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
}

// PluginsConfig controls discovery and plugin execution.
type PluginsConfig struct {
	// Paths are scanned in order; the first package claiming an id wins.
	// Empty means the per-user plugin directories.
	Paths []string `json:"paths,omitempty" yaml:"paths"`
	// Workers sizes the shared plugin-call worker pool.
	Workers int `json:"workers" yaml:"workers"`
	// RefreshInterval drives the background refresh sweep. Zero disables
	// the sweep.
	RefreshInterval Duration `json:"refresh_interval" yaml:"refresh_interval"`
}

// SearchConfig controls the distributed search orchestrator.
type SearchConfig struct {
	// Timeout bounds how long a query waits for plugin responses.
	Timeout Duration `json:"timeout" yaml:"timeout"`
	// MaxResults caps the merged result list per query.
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// BridgeConfig controls the service bridge dispatcher.
type BridgeConfig struct {
	QueueSize   int      `json:"queue_size" yaml:"queue_size"`
	Workers     int      `json:"workers" yaml:"workers"`
	CallTimeout Duration `json:"call_timeout" yaml:"call_timeout"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Plugins: PluginsConfig{
			Workers:         4,
			RefreshInterval: Duration(5 * time.Minute),
		},
		Search: SearchConfig{
			Timeout:    Duration(5 * time.Second),
			MaxResults: 50,
		},
		Bridge: BridgeConfig{
			QueueSize:   1024,
			Workers:     4,
			CallTimeout: Duration(30 * time.Second),
		},
		DataDir:  defaultDataDir(),
		LogLevel: "info",
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "action-items")
	}
	return "./data"
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the host cannot run with.
func (c *Config) Validate() error {
	if c.Plugins.Workers <= 0 {
		return fmt.Errorf("plugins.workers must be positive, got %d", c.Plugins.Workers)
	}
	if c.Plugins.RefreshInterval < 0 {
		return fmt.Errorf("plugins.refresh_interval must not be negative, got %s", c.Plugins.RefreshInterval)
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search.timeout must be positive, got %s", c.Search.Timeout)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Bridge.QueueSize <= 0 {
		return fmt.Errorf("bridge.queue_size must be positive, got %d", c.Bridge.QueueSize)
	}
	if c.Bridge.Workers <= 0 {
		return fmt.Errorf("bridge.workers must be positive, got %d", c.Bridge.Workers)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// StoragePath returns the plugin storage database location under the
// data directory.
func (c *Config) StoragePath() string {
	return filepath.Join(c.DataDir, "plugin-storage.db")
}
