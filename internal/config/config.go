// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/spetr/aethersync/pkg/types"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "aethersync.yaml"

// EnvPrefix prefixes environment overrides, e.g. AETHERSYNC_RELATIONAL_PASSWORD.
const EnvPrefix = "AETHERSYNC"

// Config represents the complete configuration.
type Config struct {
	Relational RelationalConfig `mapstructure:"relational" yaml:"relational"`
	Document   DocumentConfig   `mapstructure:"document" yaml:"document"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding" yaml:"embedding"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Sync       SyncConfig       `mapstructure:"sync" yaml:"sync"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// RelationalConfig describes the MariaDB (or local SQLite) store.
type RelationalConfig struct {
	Driver         string            `mapstructure:"driver" yaml:"driver"` // mysql, sqlite
	Host           string            `mapstructure:"host" yaml:"host"`
	Port           int               `mapstructure:"port" yaml:"port"`
	User           string            `mapstructure:"user" yaml:"user"`
	Password       string            `mapstructure:"password" yaml:"password"`
	Database       string            `mapstructure:"database" yaml:"database"`
	Path           string            `mapstructure:"path" yaml:"path"` // sqlite file
	Params         map[string]string `mapstructure:"params" yaml:"params"`
	ConnectRetries int               `mapstructure:"connect_retries" yaml:"connect_retries"`
}

// DocumentConfig describes the MongoDB store.
type DocumentConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"` // mongo, memory
	URI      string        `mapstructure:"uri" yaml:"uri"`           // overrides host/port/user
	Host     string        `mapstructure:"host" yaml:"host"`
	Port     int           `mapstructure:"port" yaml:"port"`
	User     string        `mapstructure:"user" yaml:"user"`
	Password string        `mapstructure:"password" yaml:"password"`
	AuthDB   string        `mapstructure:"auth_db" yaml:"auth_db"`
	Database string        `mapstructure:"database" yaml:"database"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider        string        `mapstructure:"provider" yaml:"provider"` // gemini, openai, plugin
	Model           string        `mapstructure:"model" yaml:"model"`
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint"`
	Dimensions      int           `mapstructure:"dimensions" yaml:"dimensions"`
	RateLimitDelay  time.Duration `mapstructure:"rate_limit_delay" yaml:"rate_limit_delay"`
	FailureCooldown time.Duration `mapstructure:"failure_cooldown" yaml:"failure_cooldown"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PluginDir       string        `mapstructure:"plugin_dir" yaml:"plugin_dir"`
}

// PipelineConfig contains batch embedding options.
type PipelineConfig struct {
	CommitEvery int      `mapstructure:"commit_every" yaml:"commit_every"`
	Entities    []string `mapstructure:"entities" yaml:"entities"`
}

// SyncConfig contains queue worker options.
type SyncConfig struct {
	Queues       []string      `mapstructure:"queues" yaml:"queues"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	LeaseTimeout time.Duration `mapstructure:"lease_timeout" yaml:"lease_timeout"`
	WorkerID     string        `mapstructure:"worker_id" yaml:"worker_id"` // generated when empty
}

// SearchConfig contains search configuration.
type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Relational: RelationalConfig{
			Driver:         "mysql",
			Host:           "localhost",
			Port:           3306,
			User:           "aethermart",
			Database:       "aethermart",
			Path:           "aethermart.db",
			ConnectRetries: 3,
		},
		Document: DocumentConfig{
			Provider: "mongo",
			Host:     "localhost",
			Port:     27017,
			AuthDB:   "admin",
			Database: "aethermart",
			Timeout:  10 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:        "gemini",
			Model:           "models/embedding-001",
			Dimensions:      768,
			RateLimitDelay:  1100 * time.Millisecond,
			FailureCooldown: 2 * time.Second,
			Timeout:         30 * time.Second,
			PluginDir:       "plugins",
		},
		Pipeline: PipelineConfig{
			CommitEvery: 10,
			Entities:    []string{"customer", "product", "review"},
		},
		Sync: SyncConfig{
			Queues:       []string{"product", "customer", "review"},
			PollInterval: 30 * time.Second,
			LeaseTimeout: 10 * time.Minute,
		},
		Search: SearchConfig{
			DefaultLimit: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (DefaultPath when empty), falling back to defaults when
// the file does not exist. Environment variables override both.
func Load(path string) (*Config, []string, error) {
	var warnings []string
	if path == "" {
		path = DefaultPath
	}

	v := newViper()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if os.IsNotExist(err) {
		warnings = append(warnings, fmt.Sprintf("No config file at %s, using defaults", path))
	} else {
		return nil, nil, fmt.Errorf("failed to stat config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case "gemini":
			cfg.Embedding.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider != "plugin" {
			warnings = append(warnings, "No embedding API key configured; embed and search will fail")
		}
	}

	return cfg, warnings, nil
}

// newViper returns a viper instance holding every default, so that
// AutomaticEnv can override keys that are absent from the file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("relational.driver", d.Relational.Driver)
	v.SetDefault("relational.host", d.Relational.Host)
	v.SetDefault("relational.port", d.Relational.Port)
	v.SetDefault("relational.user", d.Relational.User)
	v.SetDefault("relational.password", d.Relational.Password)
	v.SetDefault("relational.database", d.Relational.Database)
	v.SetDefault("relational.path", d.Relational.Path)
	v.SetDefault("relational.connect_retries", d.Relational.ConnectRetries)

	v.SetDefault("document.provider", d.Document.Provider)
	v.SetDefault("document.uri", d.Document.URI)
	v.SetDefault("document.host", d.Document.Host)
	v.SetDefault("document.port", d.Document.Port)
	v.SetDefault("document.user", d.Document.User)
	v.SetDefault("document.password", d.Document.Password)
	v.SetDefault("document.auth_db", d.Document.AuthDB)
	v.SetDefault("document.database", d.Document.Database)
	v.SetDefault("document.timeout", d.Document.Timeout)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.endpoint", d.Embedding.Endpoint)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.rate_limit_delay", d.Embedding.RateLimitDelay)
	v.SetDefault("embedding.failure_cooldown", d.Embedding.FailureCooldown)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("embedding.plugin_dir", d.Embedding.PluginDir)

	v.SetDefault("pipeline.commit_every", d.Pipeline.CommitEvery)
	v.SetDefault("pipeline.entities", d.Pipeline.Entities)

	v.SetDefault("sync.queues", d.Sync.Queues)
	v.SetDefault("sync.poll_interval", d.Sync.PollInterval)
	v.SetDefault("sync.lease_timeout", d.Sync.LeaseTimeout)
	v.SetDefault("sync.worker_id", d.Sync.WorkerID)

	v.SetDefault("search.default_limit", d.Search.DefaultLimit)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	return v
}

// Save saves configuration to path.
func Save(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set all values
	v.Set("relational", cfg.Relational)
	v.Set("document", cfg.Document)
	v.Set("embedding", cfg.Embedding)
	v.Set("pipeline", cfg.Pipeline)
	v.Set("sync", cfg.Sync)
	v.Set("search", cfg.Search)
	v.Set("logging", cfg.Logging)

	return v.WriteConfigAs(path)
}

// Validate validates the configuration and reports every problem found.
func Validate(cfg *Config) []error {
	var errs []error

	validDrivers := map[string]bool{"mysql": true, "mariadb": true, "sqlite": true}
	if !validDrivers[cfg.Relational.Driver] {
		errs = append(errs, fmt.Errorf("invalid relational driver: %s (valid: mysql, sqlite)", cfg.Relational.Driver))
	}
	if cfg.Relational.Driver == "sqlite" && cfg.Relational.Path == "" {
		errs = append(errs, fmt.Errorf("relational.path is required for sqlite"))
	}
	if cfg.Relational.Driver != "sqlite" && cfg.Relational.Database == "" {
		errs = append(errs, fmt.Errorf("relational.database is required"))
	}

	validDocuments := map[string]bool{"mongo": true, "memory": true}
	if !validDocuments[cfg.Document.Provider] {
		errs = append(errs, fmt.Errorf("invalid document provider: %s (valid: mongo, memory)", cfg.Document.Provider))
	}

	validEmbeddingProviders := map[string]bool{"gemini": true, "openai": true, "plugin": true}
	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}
	if cfg.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimensions must be positive, got %d", cfg.Embedding.Dimensions))
	}
	if cfg.Embedding.RateLimitDelay < 0 || cfg.Embedding.FailureCooldown < 0 {
		errs = append(errs, fmt.Errorf("embedding delays must not be negative"))
	}

	if cfg.Pipeline.CommitEvery <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.commit_every must be positive, got %d", cfg.Pipeline.CommitEvery))
	}
	if _, err := Entities(cfg.Pipeline.Entities); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.entities: %w", err))
	}
	if _, err := Entities(cfg.Sync.Queues); err != nil {
		errs = append(errs, fmt.Errorf("sync.queues: %w", err))
	}
	if cfg.Sync.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.poll_interval must be positive"))
	}

	if cfg.Search.DefaultLimit <= 0 {
		errs = append(errs, fmt.Errorf("search.default_limit must be positive"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format: %s (valid: text, json)", cfg.Logging.Format))
	}

	return errs
}

// Entities parses a list of entity names, rejecting duplicates.
func Entities(names []string) ([]types.Entity, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one entity is required")
	}
	seen := make(map[types.Entity]bool, len(names))
	out := make([]types.Entity, 0, len(names))
	for _, n := range names {
		e, err := types.ParseEntity(n)
		if err != nil {
			return nil, err
		}
		if seen[e] {
			return nil, fmt.Errorf("duplicate entity %s", e)
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, nil
}
