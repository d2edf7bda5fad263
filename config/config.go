// Package config holds the BrandLens core configuration.
package config

// Config represents the core BrandLens configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the BrandLens HTTP server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"` // nil = default 8760, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is used when server.port is omitted
const DefaultServerPort = 8760

// WorkerConfig configures the monitoring job worker pool
type WorkerConfig struct {
	Workers             int     `mapstructure:"workers"`                // concurrent job workers (default: 2)
	PollIntervalSeconds int     `mapstructure:"poll_interval_seconds"`  // queue poll cadence (default: 5)
	ProviderCallsPerMin float64 `mapstructure:"provider_calls_per_min"` // aggregate provider-call rate across all workers
	ProviderCallBurst   int     `mapstructure:"provider_call_burst"`    // token bucket burst size
	MaxAttempts         int     `mapstructure:"max_attempts"`           // attempt budget per job including first run (default: 3)
	RetentionHours      int     `mapstructure:"retention_hours"`        // terminal jobs kept for observability before pruning
}

// RateLimitTier is one (window, max) pair of the multi-tier policy
type RateLimitTier struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	Max           int `mapstructure:"max"`
}

// RateLimitConfig configures the sliding-window limiter.
// Tenant tiers are keyed by plan name; Global gates expensive provider calls
// across the whole system.
type RateLimitConfig struct {
	Trial  []RateLimitTier `mapstructure:"trial"`
	Paid   []RateLimitTier `mapstructure:"paid"`
	Global []RateLimitTier `mapstructure:"global"`
}

// CacheConfig configures the result cache
type CacheConfig struct {
	TTLHours int `mapstructure:"ttl_hours"` // execution result dedup window (default: 6)
}

// ProviderConfig holds credentials and model selection for one LLM provider
type ProviderConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ProvidersConfig configures the closed set of LLM providers
type ProvidersConfig struct {
	Default    string         `mapstructure:"default"`
	OpenAI     ProviderConfig `mapstructure:"openai"`
	Anthropic  ProviderConfig `mapstructure:"anthropic"`
	OpenRouter ProviderConfig `mapstructure:"openrouter"`
}

// SentimentConfig configures the sentiment scorer
type SentimentConfig struct {
	Provider    string `mapstructure:"provider"`     // provider used for LLM-backed scoring ("" = lexicon only)
	LexiconOnly bool   `mapstructure:"lexicon_only"` // force the deterministic fallback path
}
