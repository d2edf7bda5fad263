package config

import "github.com/brandlens/brandlens/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "brandlens.db" per defaults.go

	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.New("server.port cannot be 0 (omit for default port 8760)")
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	// Worker count: 0 = no background workers, negative = invalid
	if c.Worker.Workers < 0 {
		return errors.Newf("worker.workers must be >= 0, got %d", c.Worker.Workers)
	}
	if c.Worker.PollIntervalSeconds < 0 {
		return errors.Newf("worker.poll_interval_seconds must be >= 0, got %d", c.Worker.PollIntervalSeconds)
	}
	if c.Worker.MaxAttempts < 1 {
		return errors.Newf("worker.max_attempts must be >= 1, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.ProviderCallsPerMin < 0 {
		return errors.Newf("worker.provider_calls_per_min must be >= 0, got %f", c.Worker.ProviderCallsPerMin)
	}
	if c.Worker.ProviderCallBurst < 0 {
		return errors.Newf("worker.provider_call_burst must be >= 0, got %d", c.Worker.ProviderCallBurst)
	}

	// Retention: 0 = never prune, negative = invalid
	if c.Worker.RetentionHours < 0 {
		return errors.Newf("worker.retention_hours must be >= 0, got %d", c.Worker.RetentionHours)
	}

	if c.Cache.TTLHours < 0 {
		return errors.Newf("cache.ttl_hours must be >= 0, got %d", c.Cache.TTLHours)
	}

	for name, tiers := range map[string][]RateLimitTier{
		"trial":  c.RateLimit.Trial,
		"paid":   c.RateLimit.Paid,
		"global": c.RateLimit.Global,
	} {
		for _, t := range tiers {
			if t.WindowSeconds <= 0 {
				return errors.Newf("rate_limit.%s window_seconds must be > 0, got %d", name, t.WindowSeconds)
			}
			if t.Max <= 0 {
				return errors.Newf("rate_limit.%s max must be > 0, got %d", name, t.Max)
			}
		}
	}

	switch c.Providers.Default {
	case "openai", "anthropic", "openrouter":
	default:
		return errors.Newf("providers.default must be one of openai, anthropic, openrouter, got %q", c.Providers.Default)
	}

	return nil
}
