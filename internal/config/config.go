// Package config loads missionflow configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all missionflow configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Store    StoreConfig    `yaml:"store"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LLMConfig selects the generation provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // anthropic, openai, openrouter, xai, gemini, stub
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"` // HTTP client timeout
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// PipelineConfig tunes the executor. The retry budget itself is fixed.
type PipelineConfig struct {
	AttemptTimeout    string `yaml:"attempt_timeout"` // per generation attempt, "0" disables
	BackoffBase       string `yaml:"backoff_base"`    // wait = base x attempts
	MinOutputLength   int    `yaml:"min_output_length"`
	KickoffMessage    string `yaml:"kickoff_message"`
	MaxConcurrentRuns int    `yaml:"max_concurrent_runs"` // batch command only
}

// CatalogConfig points at an optional role catalog file.
type CatalogConfig struct {
	Path  string `yaml:"path"` // empty = built-in roles
	Watch bool   `yaml:"watch"`
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite3 (cgo), sqlite (pure Go), postgres
	Path   string `yaml:"path"`   // sqlite database file
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// ArchiveConfig configures the S3-compatible artifact archive.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	Dir        string          `yaml:"dir"`    // empty = stderr
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "missionflow",
		Version: "0.4.0",

		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-sonnet-4-5-20250514",
			Timeout:     "120s",
			MaxTokens:   4096,
			Temperature: 0.7,
		},

		Pipeline: PipelineConfig{
			AttemptTimeout:    "90s",
			BackoffBase:       "1s",
			MinOutputLength:   10,
			KickoffMessage:    "Begin your work.",
			MaxConcurrentRuns: 4,
		},

		Store: StoreConfig{
			Driver: "sqlite3",
			Path:   ".missionflow/runs.db",
		},

		Archive: ArchiveConfig{
			Enabled:  false,
			Endpoint: "localhost:9000",
			Region:   "us-east-1",
			Bucket:   "missionflow-runs",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. Provider keys are
// checked in priority order; the last one set wins.
func (c *Config) applyEnvOverrides() {
	providers := []struct {
		env      string
		provider string
	}{
		{"GEMINI_API_KEY", "gemini"},
		{"OPENROUTER_API_KEY", "openrouter"},
		{"OPENAI_API_KEY", "openai"},
		{"ANTHROPIC_API_KEY", "anthropic"},
	}
	for _, p := range providers {
		if key := os.Getenv(p.env); key != "" {
			c.LLM.APIKey = key
			c.LLM.Provider = p.provider
		}
	}

	if v := os.Getenv("MISSIONFLOW_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("MISSIONFLOW_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("MISSIONFLOW_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("MISSIONFLOW_CATALOG"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("MISSIONFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("MISSIONFLOW_MINIO_ENDPOINT"); v != "" {
		c.Archive.Endpoint = v
		c.Archive.Enabled = true
	}
	if v := os.Getenv("MISSIONFLOW_MINIO_ACCESS_KEY"); v != "" {
		c.Archive.AccessKey = v
	}
	if v := os.Getenv("MISSIONFLOW_MINIO_SECRET_KEY"); v != "" {
		c.Archive.SecretKey = v
	}
	if v := os.Getenv("MISSIONFLOW_MINIO_BUCKET"); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv("MISSIONFLOW_MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Archive.UseSSL = b
		}
	}
}

// GetLLMTimeout returns the LLM HTTP timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetAttemptTimeout returns the per-attempt generation timeout. Zero disables it.
func (c *Config) GetAttemptTimeout() time.Duration {
	return parseDuration(c.Pipeline.AttemptTimeout, 90*time.Second)
}

// GetBackoffBase returns the linear backoff base interval.
func (c *Config) GetBackoffBase() time.Duration {
	return parseDuration(c.Pipeline.BackoffBase, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(s) == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// ValidProviders lists all supported generation providers.
var ValidProviders = []string{"anthropic", "openai", "openrouter", "xai", "gemini", "stub"}

// ValidStoreDrivers lists the supported run store drivers.
var ValidStoreDrivers = []string{"sqlite3", "sqlite", "postgres"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Provider != "stub" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set ANTHROPIC_API_KEY, OPENAI_API_KEY, OPENROUTER_API_KEY or GEMINI_API_KEY)")
	}
	if c.Pipeline.MinOutputLength < 1 {
		return fmt.Errorf("pipeline.min_output_length must be at least 1, got %d", c.Pipeline.MinOutputLength)
	}
	if c.Pipeline.MaxConcurrentRuns < 1 {
		return fmt.Errorf("pipeline.max_concurrent_runs must be at least 1, got %d", c.Pipeline.MaxConcurrentRuns)
	}
	if !contains(ValidStoreDrivers, c.Store.Driver) {
		return fmt.Errorf("invalid store driver: %s (valid: %v)", c.Store.Driver, ValidStoreDrivers)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn (or DATABASE_URL) required for postgres")
	}
	if c.Archive.Enabled {
		if strings.Contains(c.Archive.Endpoint, "://") {
			return fmt.Errorf("archive endpoint must not include scheme: %q", c.Archive.Endpoint)
		}
		if c.Archive.Endpoint == "" || c.Archive.Bucket == "" {
			return fmt.Errorf("archive endpoint and bucket are required when archive is enabled")
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
