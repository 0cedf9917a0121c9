// Package config provides configuration loading and management for pricetrack.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pricetrack configuration
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Seeds     SeedsConfig     `yaml:"seeds"`
	NATS      NATSConfig      `yaml:"nats"`
	Export    ExportConfig    `yaml:"export"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// WorkspaceConfig configures the project workspace
type WorkspaceConfig struct {
	// Root is the workspace root path (auto-detected from git if empty)
	Root string `yaml:"root"`
	// HistoryDB is the SQLite database path (default: <root>/data/pricetrack.db)
	HistoryDB string `yaml:"history_db"`
}

// ScrapeConfig configures the scraping engine
type ScrapeConfig struct {
	// BaseURL is joined with relative seed entries (default: https://www.pricebefore.com)
	BaseURL string `yaml:"base_url"`
	// Workers is the number of concurrent scrape workers (default: 3)
	Workers int `yaml:"workers"`
	// Timeout is the per-request timeout
	Timeout time.Duration `yaml:"timeout"`
	// MaxContentSize caps the fetched page size in bytes
	MaxContentSize int64 `yaml:"max_content_size"`
	// UserAgents overrides the rotating user agent pool
	UserAgents []string `yaml:"user_agents"`
	// SampleFallback generates a synthetic series when a page has no chart data
	SampleFallback bool `yaml:"sample_fallback"`
	// AllowPrivate permits scraping hosts on private networks
	AllowPrivate bool `yaml:"allow_private"`
	// RefreshInterval is how often the daemon re-scrapes known products
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// SeedsConfig configures seed URL discovery
type SeedsConfig struct {
	// Patterns are glob patterns for seed list files (default: data/external/*.txt)
	Patterns []string `yaml:"patterns"`
	// Watch enables reloading seed files when they change
	Watch bool `yaml:"watch"`
	// DebounceMs is the watcher debounce interval in milliseconds
	DebounceMs int `yaml:"debounce_ms"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// ExportConfig configures CSV/JSON exports
type ExportConfig struct {
	// Format is the default export format (csv or json)
	Format string `yaml:"format"`
	// Dir overrides the export directory (default: <root>/data/raw)
	Dir string `yaml:"dir"`
}

// MetricsConfig configures the metrics endpoint
type MetricsConfig struct {
	// Enabled turns the /metrics HTTP listener on
	Enabled bool `yaml:"enabled"`
	// Addr is the listen address (default: :9321)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root:      "", // Auto-detect
			HistoryDB: "",
		},
		Scrape: ScrapeConfig{
			BaseURL:         "https://www.pricebefore.com",
			Workers:         3,
			Timeout:         30 * time.Second,
			MaxContentSize:  10 * 1024 * 1024,
			SampleFallback:  true,
			RefreshInterval: 6 * time.Hour,
		},
		Seeds: SeedsConfig{
			Patterns:   []string{filepath.Join("data", "external", "*.txt")},
			Watch:      false,
			DebounceMs: 500,
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Export: ExportConfig{
			Format: "csv",
			Dir:    "",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9321",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Scrape.BaseURL == "" {
		return fmt.Errorf("scrape.base_url is required")
	}
	if c.Scrape.Workers < 1 {
		return fmt.Errorf("scrape.workers must be at least 1")
	}
	if c.Scrape.Timeout <= 0 {
		return fmt.Errorf("scrape.timeout must be positive")
	}
	if len(c.Seeds.Patterns) == 0 {
		return fmt.Errorf("seeds.patterns must not be empty")
	}
	switch c.Export.Format {
	case "csv", "json":
	default:
		return fmt.Errorf("export.format must be csv or json")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Workspace
	if other.Workspace.Root != "" {
		c.Workspace.Root = other.Workspace.Root
	}
	if other.Workspace.HistoryDB != "" {
		c.Workspace.HistoryDB = other.Workspace.HistoryDB
	}

	// Scrape
	if other.Scrape.BaseURL != "" {
		c.Scrape.BaseURL = other.Scrape.BaseURL
	}
	if other.Scrape.Workers != 0 {
		c.Scrape.Workers = other.Scrape.Workers
	}
	if other.Scrape.Timeout != 0 {
		c.Scrape.Timeout = other.Scrape.Timeout
	}
	if other.Scrape.MaxContentSize != 0 {
		c.Scrape.MaxContentSize = other.Scrape.MaxContentSize
	}
	if len(other.Scrape.UserAgents) > 0 {
		c.Scrape.UserAgents = other.Scrape.UserAgents
	}
	if other.Scrape.RefreshInterval != 0 {
		c.Scrape.RefreshInterval = other.Scrape.RefreshInterval
	}
	c.Scrape.SampleFallback = other.Scrape.SampleFallback
	c.Scrape.AllowPrivate = other.Scrape.AllowPrivate

	// Seeds
	if len(other.Seeds.Patterns) > 0 {
		c.Seeds.Patterns = other.Seeds.Patterns
	}
	if other.Seeds.DebounceMs != 0 {
		c.Seeds.DebounceMs = other.Seeds.DebounceMs
	}
	c.Seeds.Watch = other.Seeds.Watch

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}

	// Export
	if other.Export.Format != "" {
		c.Export.Format = other.Export.Format
	}
	if other.Export.Dir != "" {
		c.Export.Dir = other.Export.Dir
	}

	// Metrics
	if other.Metrics.Enabled {
		c.Metrics.Enabled = true
	}
	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}
