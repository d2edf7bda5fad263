// Package commands implements the brandlens CLI commands.
package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/brandlens/brandlens/cache"
	"github.com/brandlens/brandlens/config"
	"github.com/brandlens/brandlens/db"
	"github.com/brandlens/brandlens/errors"
	"github.com/brandlens/brandlens/logger"
	"github.com/brandlens/brandlens/mention"
	"github.com/brandlens/brandlens/monitor"
	"github.com/brandlens/brandlens/provider"
	"github.com/brandlens/brandlens/queue"
	"github.com/brandlens/brandlens/ratelimit"
	"github.com/brandlens/brandlens/tenant"
)

// app bundles the wired collaborators every command builds from
// configuration. Nothing here is global; each command constructs and
// closes its own app.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	store      *monitor.Store
	tenants    *tenant.Store
	runner     *monitor.Runner
	queue      *queue.Queue
	cache      *cache.Cache
	dispatcher *provider.Dispatcher
}

// loadConfig resolves configuration from the --config flag or the
// standard lookup path
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.Root().PersistentFlags().GetString("config")
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// buildApp loads configuration, migrates the database, and wires the
// full execution stack
func buildApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	dispatcher, err := provider.NewDispatcher(provider.DispatcherConfig{
		Default:    cfg.Providers.Default,
		OpenAI:     clientConfig(cfg.Providers.OpenAI),
		Anthropic:  clientConfig(cfg.Providers.Anthropic),
		OpenRouter: clientConfig(cfg.Providers.OpenRouter),
	}, logger.Logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	store := monitor.NewStore(database)
	tenants := tenant.NewStore(database)
	limiter := ratelimit.NewLimiter(ratelimit.NewSQLStore(database), tierSet(cfg.RateLimit), logger.Logger)
	resultCache := cache.New(database, cfg.Cache.TTL(), logger.Logger)
	scorer := buildScorer(cfg.Sentiment, dispatcher)
	runner := monitor.NewRunner(store, tenants, limiter, resultCache, dispatcher, scorer, logger.Logger)

	jobQueue := queue.NewQueue(database)
	jobQueue.SetMaxAttempts(cfg.Worker.MaxAttempts)

	return &app{
		cfg:        cfg,
		db:         database,
		store:      store,
		tenants:    tenants,
		runner:     runner,
		queue:      jobQueue,
		cache:      resultCache,
		dispatcher: dispatcher,
	}, nil
}

// Close releases the app's database handle
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func clientConfig(p config.ProviderConfig) provider.ClientConfig {
	cc := provider.ClientConfig{
		APIKey: p.APIKey,
		Model:  p.Model,
	}
	if p.Temperature != 0 {
		temp := p.Temperature
		cc.Temperature = &temp
	}
	if p.MaxTokens != 0 {
		max := p.MaxTokens
		cc.MaxTokens = &max
	}
	return cc
}

func tierSet(cfg config.RateLimitConfig) ratelimit.TierSet {
	return ratelimit.TierSet{
		Trial:  tiers(cfg.Trial),
		Paid:   tiers(cfg.Paid),
		Global: tiers(cfg.Global),
	}
}

func tiers(configured []config.RateLimitTier) []ratelimit.Tier {
	converted := make([]ratelimit.Tier, 0, len(configured))
	for _, t := range configured {
		converted = append(converted, ratelimit.Tier{Window: t.Window(), Max: t.Max})
	}
	return converted
}

// buildScorer resolves the sentiment scoring client. Misconfiguration
// falls back to the deterministic lexicon rather than failing startup.
func buildScorer(cfg config.SentimentConfig, dispatcher *provider.Dispatcher) *mention.Scorer {
	if cfg.LexiconOnly || cfg.Provider == "" {
		return mention.NewScorer(nil, logger.Logger)
	}
	client, err := dispatcher.Resolve(cfg.Provider)
	if err != nil {
		logger.Warnw("Sentiment provider unavailable, using lexicon scoring",
			"provider", cfg.Provider, "error", err)
		return mention.NewScorer(nil, logger.Logger)
	}
	return mention.NewScorer(client, logger.Logger)
}
