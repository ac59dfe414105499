// Package config loads and validates all runtime configuration for the
// gateway, then hands it to a Store for the lifetime of the process.
//
// Configuration is read from environment variables (preferred for
// containers) or from a config.toml file in the working directory.
// Environment variables take precedence over the TOML file.
//
// Naming convention: env vars use UPPER_SNAKE_CASE; the TOML file uses the
// same names in lower_snake_case. For example OPENAI_API_KEY becomes
// openai_api_key in TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// ProviderConfig holds per-vendor configuration. A provider is "configured"
// iff Endpoint is non-empty.
type ProviderConfig struct {
	APIKey   string
	Model    string
	Endpoint string
}

// Configured reports whether this provider slot has a usable endpoint.
func (p ProviderConfig) Configured() bool { return p.Endpoint != "" }

// GuardrailConfig mirrors the pure-function policy applied by package
// guardrails to every outbound assistant response.
type GuardrailConfig struct {
	BannedPhrases     []string
	MinLength         int
	MaxLength         int
	RequireDisclaimer bool
	Disclaimer        string
}

// RateLimitPlan is a named (requests, window) pair.
type RateLimitPlan struct {
	Name             string
	RequestsPerWindow int
	WindowSeconds    int
}

// LoggingConfig controls the logger's verbosity and optional external sink.
type LoggingConfig struct {
	Verbose    bool
	SinkEnabled bool
	SinkKind   string // "clickhouse" or ""
	SinkDSN    string
}

// Config is the top-level, immutable-after-load configuration snapshot.
// Mutable copies of this (via Store) back every admin-writable field.
type Config struct {
	Port           int
	AdminPort      int
	GRPCPort       int
	LogLevel       string
	CORSOrigins    []string

	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gemini    ProviderConfig
	Ollama    ProviderConfig
	Mistral   ProviderConfig
	Cohere    ProviderConfig

	SystemPrompt string
	Guardrails   GuardrailConfig
	Logging      LoggingConfig

	CacheTTL            time.Duration
	CacheExcludeExact   []string
	CacheExcludePattern []string
	RefreshCreatedOnHit bool

	DefaultPlan RateLimitPlan
	WildcardPlan RateLimitPlan
	ClientPlans map[string]RateLimitPlan

	// ServiceRoutes backs the generic ANY /{serviceName}/{...path} reverse
	// proxy passthrough, keyed by serviceName.
	ServiceRoutes map[string]string

	RateLimitBackend string // "memory" (default) or "redis"
	RedisURL         string

	CircuitBreakerErrorThreshold  int
	CircuitBreakerTimeWindow      time.Duration
	CircuitBreakerHalfOpenTimeout time.Duration

	MaxRetries      int
	ProviderTimeout time.Duration
}

// Load reads configuration from environment variables and (optionally) from
// config.toml in the current working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", 8080)
	v.SetDefault("ADMIN_PORT", 8081)
	v.SetDefault("GRPC_PORT", 8082)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ORIGINS", []string{"*"})

	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("REFRESH_CREATED_ON_HIT", false)

	v.SetDefault("CB_ERROR_THRESHOLD", 5)
	v.SetDefault("CB_TIME_WINDOW", "60s")
	v.SetDefault("CB_HALF_OPEN_TIMEOUT", "30s")

	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("PROVIDER_TIMEOUT", "30s")

	v.SetDefault("RATE_LIMIT_BACKEND", "memory")

	v.SetDefault("GUARDRAIL_MIN_LENGTH", 0)
	v.SetDefault("GUARDRAIL_MAX_LENGTH", 1<<20)
	v.SetDefault("GUARDRAIL_REQUIRE_DISCLAIMER", false)

	cfg := &Config{
		Port:        v.GetInt("PORT"),
		AdminPort:   v.GetInt("ADMIN_PORT"),
		GRPCPort:    v.GetInt("GRPC_PORT"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		CORSOrigins: v.GetStringSlice("CORS_ORIGINS"),

		OpenAI: ProviderConfig{
			APIKey:   v.GetString("OPENAI_API_KEY"),
			Model:    orDefault(v.GetString("OPENAI_MODEL"), "gpt-4o"),
			Endpoint: orDefault(v.GetString("OPENAI_BASE_URL"), "https://api.openai.com/v1"),
		},
		Anthropic: ProviderConfig{
			APIKey:   v.GetString("ANTHROPIC_API_KEY"),
			Model:    orDefault(v.GetString("ANTHROPIC_MODEL"), "claude-3-5-sonnet-20241022"),
			Endpoint: orDefault(v.GetString("ANTHROPIC_BASE_URL"), "https://api.anthropic.com/v1"),
		},
		Gemini: ProviderConfig{
			APIKey:   v.GetString("GOOGLE_API_KEY"),
			Model:    orDefault(v.GetString("GEMINI_MODEL"), "gemini-1.5-flash"),
			Endpoint: orDefault(v.GetString("GEMINI_BASE_URL"), "https://generativelanguage.googleapis.com/v1beta"),
		},
		Ollama: ProviderConfig{
			APIKey:   v.GetString("OLLAMA_API_KEY"),
			Model:    orDefault(v.GetString("OLLAMA_MODEL"), "llama3"),
			Endpoint: v.GetString("OLLAMA_BASE_URL"),
		},
		Mistral: ProviderConfig{
			APIKey:   v.GetString("MISTRAL_API_KEY"),
			Model:    orDefault(v.GetString("MISTRAL_MODEL"), "mistral-large-latest"),
			Endpoint: orDefault(v.GetString("MISTRAL_BASE_URL"), "https://api.mistral.ai/v1"),
		},
		Cohere: ProviderConfig{
			APIKey:   v.GetString("COHERE_API_KEY"),
			Model:    orDefault(v.GetString("COHERE_MODEL"), "command-r-plus"),
			Endpoint: orDefault(v.GetString("COHERE_BASE_URL"), "https://api.cohere.ai/v1"),
		},

		SystemPrompt: v.GetString("SYSTEM_PROMPT"),
		Guardrails: GuardrailConfig{
			BannedPhrases:     v.GetStringSlice("GUARDRAIL_BANNED_PHRASES"),
			MinLength:         v.GetInt("GUARDRAIL_MIN_LENGTH"),
			MaxLength:         v.GetInt("GUARDRAIL_MAX_LENGTH"),
			RequireDisclaimer: v.GetBool("GUARDRAIL_REQUIRE_DISCLAIMER"),
			Disclaimer:        v.GetString("GUARDRAIL_DISCLAIMER"),
		},
		Logging: LoggingConfig{
			Verbose:     v.GetBool("LOG_VERBOSE"),
			SinkEnabled: v.GetString("LOG_SINK_KIND") != "",
			SinkKind:    v.GetString("LOG_SINK_KIND"),
			SinkDSN:     v.GetString("LOG_SINK_DSN"),
		},

		CacheTTL:            v.GetDuration("CACHE_TTL"),
		CacheExcludeExact:   v.GetStringSlice("CACHE_EXCLUDE_EXACT"),
		CacheExcludePattern: v.GetStringSlice("CACHE_EXCLUDE_PATTERNS"),
		RefreshCreatedOnHit: v.GetBool("REFRESH_CREATED_ON_HIT"),

		DefaultPlan: RateLimitPlan{
			Name:             "default",
			RequestsPerWindow: v.GetInt("DEFAULT_PLAN_LIMIT"),
			WindowSeconds:    orDefaultInt(v.GetInt("DEFAULT_PLAN_WINDOW"), 60),
		},
		WildcardPlan: RateLimitPlan{
			Name:             "wildcard",
			RequestsPerWindow: v.GetInt("WILDCARD_PLAN_LIMIT"),
			WindowSeconds:    orDefaultInt(v.GetInt("WILDCARD_PLAN_WINDOW"), 60),
		},
		ClientPlans:   map[string]RateLimitPlan{},
		ServiceRoutes: map[string]string{},

		RateLimitBackend: strings.ToLower(v.GetString("RATE_LIMIT_BACKEND")),
		RedisURL:         v.GetString("REDIS_URL"),

		CircuitBreakerErrorThreshold:  v.GetInt("CB_ERROR_THRESHOLD"),
		CircuitBreakerTimeWindow:      v.GetDuration("CB_TIME_WINDOW"),
		CircuitBreakerHalfOpenTimeout: v.GetDuration("CB_HALF_OPEN_TIMEOUT"),

		MaxRetries:      v.GetInt("MAX_RETRIES"),
		ProviderTimeout: v.GetDuration("PROVIDER_TIMEOUT"),
	}

	// A vendor slot with a default public endpoint stays unconfigured while its
	// API key is unset. Ollama has no default endpoint and needs no key.
	for _, p := range []*ProviderConfig{&cfg.OpenAI, &cfg.Anthropic, &cfg.Gemini, &cfg.Mistral, &cfg.Cohere} {
		if p.APIKey == "" {
			p.Endpoint = ""
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// validate checks constraints that cannot be expressed as viper defaults.
func (c *Config) validate() error {
	if !c.AtLeastOneProviderConfigured() {
		return errors.New(
			"config: at least one of OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, " +
				"OLLAMA_BASE_URL, MISTRAL_API_KEY, COHERE_API_KEY must configure a usable endpoint",
		)
	}

	for name, p := range c.providerSlots() {
		if !p.Configured() {
			continue
		}
		if p.APIKey == "" && name != "ollama" {
			return fmt.Errorf("config: provider %s is configured but has no API key", name)
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q; must be one of: debug, info, warn, error", c.LogLevel)
	}

	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: invalid RATE_LIMIT_BACKEND %q; must be one of: memory, redis", c.RateLimitBackend)
	}
	if c.RateLimitBackend == "redis" && c.RedisURL == "" {
		return errors.New("config: REDIS_URL is required when RATE_LIMIT_BACKEND=redis")
	}

	if c.CircuitBreakerErrorThreshold < 1 {
		return fmt.Errorf("config: CB_ERROR_THRESHOLD must be >= 1, got %d", c.CircuitBreakerErrorThreshold)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("config: MAX_RETRIES must be >= 1, got %d", c.MaxRetries)
	}

	return nil
}

// providerSlots returns the six provider slots keyed by their canonical
// name. It is a map, so iteration order is not defined; providers.Names
// holds the ordered list.
func (c *Config) providerSlots() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai":    c.OpenAI,
		"anthropic": c.Anthropic,
		"gemini":    c.Gemini,
		"ollama":    c.Ollama,
		"mistral":   c.Mistral,
		"cohere":    c.Cohere,
	}
}

// AtLeastOneProviderConfigured reports whether startup validation (§4.1)
// passes: at least one provider slot has a usable endpoint.
func (c *Config) AtLeastOneProviderConfigured() bool {
	for _, p := range c.providerSlots() {
		if p.Configured() {
			return true
		}
	}
	return false
}

func loadDotEnv(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	return nil
}
