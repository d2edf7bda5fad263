package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "brandlens.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})

	// Worker pool defaults
	v.SetDefault("worker.workers", 2)
	v.SetDefault("worker.poll_interval_seconds", 5)
	v.SetDefault("worker.provider_calls_per_min", 30.0) // aggregate across workers, independent of concurrency
	v.SetDefault("worker.provider_call_burst", 5)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.retention_hours", 72)

	// Rate limit tiers: burst-per-minute then sustained-per-hour/day.
	// Order matters: tiers are evaluated in sequence and the first denial wins.
	v.SetDefault("ratelimit.trial", []map[string]interface{}{
		{"window_seconds": 60, "max": 3},
		{"window_seconds": 3600, "max": 10},
		{"window_seconds": 86400, "max": 25},
	})
	v.SetDefault("ratelimit.paid", []map[string]interface{}{
		{"window_seconds": 60, "max": 10},
		{"window_seconds": 3600, "max": 100},
		{"window_seconds": 86400, "max": 500},
	})
	v.SetDefault("ratelimit.global", []map[string]interface{}{
		{"window_seconds": 60, "max": 60},
		{"window_seconds": 3600, "max": 1000},
	})

	// Result cache defaults
	v.SetDefault("cache.ttl_hours", 6)

	// Provider defaults
	v.SetDefault("providers.default", "openai")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.temperature", 0.2)
	v.SetDefault("providers.openai.max_tokens", 1000)
	v.SetDefault("providers.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("providers.anthropic.temperature", 0.2)
	v.SetDefault("providers.anthropic.max_tokens", 1000)
	v.SetDefault("providers.openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("providers.openrouter.temperature", 0.2)
	v.SetDefault("providers.openrouter.max_tokens", 1000)

	// Sentiment defaults
	v.SetDefault("sentiment.provider", "")
	v.SetDefault("sentiment.lexicon_only", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "BRANDLENS_DATABASE_PATH")
	v.BindEnv("providers.openai.api_key", "BRANDLENS_OPENAI_API_KEY")
	v.BindEnv("providers.anthropic.api_key", "BRANDLENS_ANTHROPIC_API_KEY")
	v.BindEnv("providers.openrouter.api_key", "BRANDLENS_OPENROUTER_API_KEY")
}
