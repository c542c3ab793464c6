package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds application configuration.
// Values come from baseDir/config.json and are overridden by environment
// variables. Secrets (API keys, Redis password) only come from the environment.
type Config struct {
	// Env selects logger format and error verbosity: "development" exposes
	// error details and internal messages to callers.
	Env      string `json:"env" env:"FACET_ENV" validate:"required"`
	LogLevel string `json:"log_level" env:"FACET_LOG_LEVEL"`

	Inference InferenceConfig `json:"inference"`
	Retry     RetryConfig     `json:"retry"`
	Cache     CacheConfig     `json:"cache"`
	Storage   StorageConfig   `json:"storage"`
	Server    ServerConfig    `json:"server"`

	// ExtractTimeoutSeconds bounds a whole extraction including retries.
	// 0 disables the budget.
	ExtractTimeoutSeconds int `json:"extract_timeout_seconds" env:"FACET_EXTRACT_TIMEOUT_SECONDS" validate:"min=0"`

	// ExportsDir is where persona exports are written by default.
	// Empty means baseDir/exports.
	ExportsDir string `json:"exports_dir,omitempty" env:"FACET_EXPORTS_DIR"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ExportsDir require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty" env:"FACET_ALLOWED_PATHS"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlinks are still rejected.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty" env:"FACET_ALLOW_UNSAFE_PATHS"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty" env:"FACET_DISABLED_TOOLS"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "persona", "cache". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty" env:"FACET_DISABLED_TYPES"`
}

// InferenceConfig selects and tunes the LLM backend.
type InferenceConfig struct {
	Provider    string  `json:"provider" env:"FACET_INFERENCE_PROVIDER" validate:"oneof=openai gemini anthropic"`
	Model       string  `json:"model" env:"FACET_INFERENCE_MODEL"`
	BaseURL     string  `json:"base_url,omitempty" env:"FACET_INFERENCE_BASE_URL" validate:"omitempty,http_url"`
	Temperature float32 `json:"temperature" env:"FACET_INFERENCE_TEMPERATURE" validate:"min=0,max=2"`
	MaxTokens   int     `json:"max_tokens" env:"FACET_INFERENCE_MAX_TOKENS" validate:"min=1"`

	OpenAIAPIKey    string `json:"-" env:"OPENAI_API_KEY"`
	GeminiAPIKey    string `json:"-" env:"GEMINI_API_KEY"`
	AnthropicAPIKey string `json:"-" env:"ANTHROPIC_API_KEY"`
}

// RetryConfig tunes the backoff retrier wrapped around inference calls.
type RetryConfig struct {
	MaxRetries     int `json:"max_retries" env:"FACET_RETRY_MAX_RETRIES" validate:"min=0,max=10"`
	InitialDelayMs int `json:"initial_delay_ms" env:"FACET_RETRY_INITIAL_DELAY_MS" validate:"min=0"`
}

// CacheConfig selects the persona cache.
type CacheConfig struct {
	Backend    string `json:"backend" env:"FACET_CACHE_BACKEND" validate:"oneof=memory redis"`
	TTLSeconds int    `json:"ttl_seconds" env:"FACET_CACHE_TTL_SECONDS" validate:"min=1"`

	// MaxEntries caps the memory cache; the oldest entry is evicted on insert.
	// 0 means unbounded.
	MaxEntries int `json:"max_entries,omitempty" env:"FACET_CACHE_MAX_ENTRIES" validate:"min=0"`

	RedisAddr     string `json:"redis_addr,omitempty" env:"FACET_REDIS_ADDR" validate:"required_if=Backend redis"`
	RedisPassword string `json:"-" env:"FACET_REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db,omitempty" env:"FACET_REDIS_DB" validate:"min=0"`
	RedisPrefix   string `json:"redis_prefix,omitempty" env:"FACET_REDIS_PREFIX"`
}

// StorageConfig selects where personas are persisted.
type StorageConfig struct {
	Backend string `json:"backend" env:"FACET_STORAGE_BACKEND" validate:"oneof=sqlite gcs memory"`

	// Path is the sqlite database file. Empty means baseDir/facet.db.
	Path string `json:"path,omitempty" env:"FACET_STORAGE_PATH"`

	GCSBucket string `json:"gcs_bucket,omitempty" env:"FACET_GCS_BUCKET" validate:"required_if=Backend gcs"`
	GCSPrefix string `json:"gcs_prefix,omitempty" env:"FACET_GCS_PREFIX"`

	// GCSCredentialsFile is optional; application default credentials are used otherwise.
	GCSCredentialsFile string `json:"-" env:"GOOGLE_APPLICATION_CREDENTIALS"`

	// DBMaxOpenConns limits open sqlite connections. 0 means sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" env:"FACET_DB_MAX_OPEN_CONNS" validate:"min=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	BindAddr string `json:"bind_addr" env:"FACET_BIND_ADDR"`
	Port     int    `json:"port" env:"FACET_PORT" validate:"min=1,max=65535"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddr, s.Port)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Env:      "production",
		LogLevel: "info",
		Inference: InferenceConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialDelayMs: 1000,
		},
		Cache: CacheConfig{
			Backend:     "memory",
			TTLSeconds:  86400,
			RedisPrefix: "facet:cache:",
		},
		Storage: StorageConfig{
			Backend: "sqlite",
		},
		Server: ServerConfig{
			BindAddr: "127.0.0.1",
			Port:     8080,
		},
		ExtractTimeoutSeconds: 120,
	}
}

// DefaultBaseDir returns ~/.facet.
func DefaultBaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".facet"), nil
}

// Load loads configuration from baseDir/config.json, then applies
// environment overrides. Returns defaults (plus environment) if the file
// doesn't exist. The baseDir parameter allows tests to use t.TempDir().
func Load(baseDir string) (*Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(baseDir, "config.json")

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, err
	}

	cfg.DisabledTools = dedupe(cfg.DisabledTools)
	cfg.DisabledTypes = dedupe(cfg.DisabledTypes)
	cfg.AllowedPaths = dedupe(cfg.AllowedPaths)
	if cfg.ExportsDir == "" {
		cfg.ExportsDir = filepath.Join(baseDir, "exports")
	}
	if cfg.Storage.Backend == "sqlite" && cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(baseDir, "facet.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum fields and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment reports whether error details may be shown to callers.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development":
		return true
	}
	return false
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// ExtractTimeout returns the extraction budget; 0 means unbounded.
func (c *Config) ExtractTimeout() time.Duration {
	return time.Duration(c.ExtractTimeoutSeconds) * time.Second
}

// InitialDelay returns the first retry delay.
func (c *Config) InitialDelay() time.Duration {
	return time.Duration(c.Retry.InitialDelayMs) * time.Millisecond
}

// EnvHelp describes every environment variable the config reads.
func EnvHelp() (string, error) {
	return cleanenv.GetDescription(&Config{}, nil)
}

// dedupe trims whitespace and removes duplicates and blanks.
func dedupe(in []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(in))

	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
