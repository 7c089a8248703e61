package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"stocksync/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stocksync pipeline.
type Config struct {
	Storage  Storage        `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	Logging  Logging        `yaml:"logging"`
	Ingest   IngestConfig   `yaml:"ingest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath     string `yaml:"sqlite_path"`
	DeadLetterPath string `yaml:"dead_letter_path"`
	ArchiveDir     string `yaml:"archive_dir"`
	RetentionYears int    `yaml:"retention_years"`
	MaxConns       int    `yaml:"max_conns"`
}

// ProviderConfig holds credentials and endpoints for the market-data
// provider API. Endpoint paths are provider-specific and may carry fixed
// query parameters (e.g. "/key-metrics?period=quarter&limit=5").
type ProviderConfig struct {
	BaseURL         string            `yaml:"base_url"`
	APIKey          string            `yaml:"api_key"`
	TimeoutSecs     int               `yaml:"timeout_secs"`
	MaxRetries      int               `yaml:"max_retries"`
	RateLimitPerMin int               `yaml:"rate_limit_per_min"`
	Endpoints       map[string]string `yaml:"endpoints"`
}

// Endpoint returns the configured endpoint path for a data domain.
func (p ProviderConfig) Endpoint(d domain.Domain) (string, error) {
	ep, ok := p.Endpoints[string(d)]
	if !ok || ep == "" {
		return "", fmt.Errorf("no endpoint configured for domain %q", d)
	}
	return ep, nil
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IngestConfig controls ingestion behaviour per data domain.
type IngestConfig struct {
	UniverseFile string                     `yaml:"universe_file"`
	PriceDays    int                        `yaml:"price_days"`
	Domains      map[string]DomainJobConfig `yaml:"domains"`
}

// DomainJobConfig holds parameters for one domain's ingestion task.
type DomainJobConfig struct {
	Concurrency int  `yaml:"concurrency"`
	Enabled     bool `yaml:"enabled"`
}

// Concurrency returns the configured concurrency ceiling for a domain,
// defaulting to 10 when unset.
func (c IngestConfig) Concurrency(d domain.Domain) int {
	if jc, ok := c.Domains[string(d)]; ok && jc.Concurrency > 0 {
		return jc.Concurrency
	}
	return 10
}

// Enabled reports whether a domain's ingestion task should run. Domains not
// mentioned in the config are enabled.
func (c IngestConfig) Enabled(d domain.Domain) bool {
	jc, ok := c.Domains[string(d)]
	if !ok {
		return true
	}
	return jc.Enabled
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides
// the corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("DEAD_LETTER_PATH"); v != "" {
		cfg.Storage.DeadLetterPath = v
	}
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		cfg.Storage.ArchiveDir = v
	}

	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("PROVIDER_RATE_LIMIT_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Provider.RateLimitPerMin = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Canonical provider key variable (highest priority).
	if v := os.Getenv("FMP_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
}

// applyDefaults fills zero-valued fields with sane defaults.
func applyDefaults(cfg *Config) {
	if cfg.Provider.TimeoutSecs <= 0 {
		cfg.Provider.TimeoutSecs = 30
	}
	if cfg.Provider.MaxRetries <= 0 {
		cfg.Provider.MaxRetries = 3
	}
	if cfg.Storage.RetentionYears <= 0 {
		cfg.Storage.RetentionYears = 5
	}
	if cfg.Storage.MaxConns <= 0 {
		cfg.Storage.MaxConns = 10
	}
	if cfg.Ingest.PriceDays <= 0 {
		cfg.Ingest.PriceDays = 5
	}
}
