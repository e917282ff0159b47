package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for saga-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Evidence provider configuration
	Provider ProviderConfig `yaml:"provider"`

	// Suggestion engine tuning
	Engine EngineConfig `yaml:"engine"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether bearer tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// SigningSecret is the shared HMAC secret reviewer tokens are signed with.
	SigningSecret string `yaml:"-" env:"AUTH_SIGNING_SECRET"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"saga"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"saga_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ProviderConfig holds evidence provider configuration.
type ProviderConfig struct {
	// Kind selects the provider implementation: "openai" or "anthropic".
	Kind string `yaml:"kind" env:"PROVIDER_KIND" env-default:"openai"`

	// Endpoint is the base URL of an OpenAI-compatible API. For the anthropic
	// kind it supplies the borrowed embedding channel.
	Endpoint       string `yaml:"endpoint" env:"PROVIDER_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model          string `yaml:"model" env:"PROVIDER_MODEL" env-default:"gpt-4o-mini"`
	EmbeddingModel string `yaml:"embedding_model" env:"PROVIDER_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey         string `yaml:"-" env:"PROVIDER_API_KEY"` // Secret - not in YAML

	// TimeoutSeconds bounds one provider call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"PROVIDER_TIMEOUT_SECONDS" env-default:"30"`
}

// Timeout returns the per-call provider timeout.
func (c *ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EngineConfig holds suggestion-engine tuning knobs.
type EngineConfig struct {
	// MaxConcurrent bounds concurrent pair evaluations in a batch.
	MaxConcurrent int `yaml:"max_concurrent" env:"ENGINE_MAX_CONCURRENT" env-default:"8"`
	// MaxPairsPerBatch caps how many pairs one batch tick evaluates.
	MaxPairsPerBatch int `yaml:"max_pairs_per_batch" env:"ENGINE_MAX_PAIRS_PER_BATCH" env-default:"50"`
	// CallsPerMinute is the rolling-window provider call budget.
	CallsPerMinute int `yaml:"calls_per_minute" env:"ENGINE_CALLS_PER_MINUTE" env-default:"30"`
	// RecalibrationThreshold is how much feedback must accumulate before
	// feature weights are recalibrated.
	RecalibrationThreshold int `yaml:"recalibration_threshold" env:"ENGINE_RECALIBRATION_THRESHOLD" env-default:"10"`
	// StalePendingDays is how old a pending suggestion must be before its
	// pair is re-evaluated.
	StalePendingDays int `yaml:"stale_pending_days" env:"ENGINE_STALE_PENDING_DAYS" env-default:"7"`
}

// StalePendingAfter returns the stale-pending threshold as a duration.
func (c *EngineConfig) StalePendingAfter() time.Duration {
	return time.Duration(c.StalePendingDays) * 24 * time.Hour
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. Secrets (PGPASSWORD, PROVIDER_API_KEY, AUTH_SIGNING_SECRET)
// must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.EnableVerification && c.Auth.SigningSecret == "" {
		return fmt.Errorf("AUTH_SIGNING_SECRET is required when auth verification is enabled")
	}
	if c.Engine.MaxConcurrent < 1 {
		return fmt.Errorf("engine.max_concurrent must be at least 1")
	}
	if c.Engine.CallsPerMinute < 1 {
		return fmt.Errorf("engine.calls_per_minute must be at least 1")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
