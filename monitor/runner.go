package monitor

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/brandlens/brandlens/cache"
	"github.com/brandlens/brandlens/errors"
	"github.com/brandlens/brandlens/mention"
	"github.com/brandlens/brandlens/provider"
	"github.com/brandlens/brandlens/ratelimit"
	"github.com/brandlens/brandlens/tenant"
)

// Runner orchestrates a single query execution: quota, rate limit,
// cache, provider call, mention detection, sentiment scoring, and
// persistence. All collaborators are injected; the Runner owns none of
// their lifecycles.
type Runner struct {
	store      *Store
	tenants    *tenant.Store
	limiter    *ratelimit.Limiter
	cache      *cache.Cache
	dispatcher *provider.Dispatcher
	scorer     *mention.Scorer
	logger     *zap.SugaredLogger
	timeNow    func() time.Time
}

// NewRunner wires an execution runner
func NewRunner(
	store *Store,
	tenants *tenant.Store,
	limiter *ratelimit.Limiter,
	resultCache *cache.Cache,
	dispatcher *provider.Dispatcher,
	scorer *mention.Scorer,
	logger *zap.SugaredLogger,
) *Runner {
	return &Runner{
		store:      store,
		tenants:    tenants,
		limiter:    limiter,
		cache:      resultCache,
		dispatcher: dispatcher,
		scorer:     scorer,
		logger:     logger,
		timeNow:    time.Now,
	}
}

// RunRequest identifies what to execute. Exactly one of QueryID or
// CustomQuery must be set. Provider may be empty for the default.
type RunRequest struct {
	TenantID    string
	ProjectID   string
	QueryID     string
	CustomQuery string
	Provider    string
}

// RunResult is the outcome of one execution
type RunResult struct {
	Execution *Execution       `json:"execution"`
	Mentions  []*BrandMention  `json:"mentions"`
	Summary   Summary          `json:"summary"`
	CacheHit  bool             `json:"cache_hit"`
	RateLimit *ratelimit.Result `json:"-"`
}

// Run executes one query for a tenant. On quota or rate-limit rejection
// no execution record is created; the rejection surfaces as a typed
// error (with RateLimit populated on the partial result for headers).
// Provider failures close the execution as failed and re-raise.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	project, err := r.store.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	// Tenant isolation: a project outside the caller's tenant does not exist
	if project.TenantID != req.TenantID {
		return nil, errors.Wrapf(errors.ErrNotFound, "project %s", req.ProjectID)
	}

	queryID, queryText, err := r.resolveQuery(ctx, project, req)
	if err != nil {
		return nil, err
	}

	// Provider resolution first: an unknown provider is a configuration
	// error and must not consume quota or rate-limit slots
	client, err := r.dispatcher.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}
	providerName := string(client.Type())

	tn, err := r.tenants.Get(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if _, err := r.tenants.CheckQuota(ctx, req.TenantID); err != nil {
		return nil, err
	}

	// Provider calls are expensive: the limiter fails closed on store outage
	rlResult, err := r.limiter.CheckTenant(ctx, req.TenantID, string(tn.Plan), true)
	if err != nil {
		return nil, err
	}
	if !rlResult.Allowed {
		return &RunResult{RateLimit: rlResult}, errors.Wrapf(errors.ErrRateLimited,
			"retry after %s", rlResult.RetryAfter.Round(time.Second))
	}

	key := cache.Fingerprint(req.ProjectID, queryText, providerName)
	if cached, hit, err := r.cache.Get(ctx, key); err == nil && hit {
		var result RunResult
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			result.CacheHit = true
			result.RateLimit = rlResult
			if r.logger != nil {
				r.logger.Debugw("Cache hit", "project_id", req.ProjectID, "provider", providerName)
			}
			return &result, nil
		}
		// Corrupt entry: drop it and fall through to a fresh execution
		_ = r.cache.Delete(ctx, key)
	}

	exec := &Execution{
		ProjectID: req.ProjectID,
		QueryID:   queryID,
		QueryText: queryText,
		Provider:  providerName,
		Status:    StatusRunning,
	}
	if err := r.store.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	result, err := r.execute(ctx, client, project, exec)
	if err != nil {
		if failErr := r.store.FailExecution(ctx, exec.ID, err.Error()); failErr != nil && r.logger != nil {
			r.logger.Errorw("Failed to record execution failure",
				"execution_id", exec.ID, "error", failErr)
		}
		return nil, err
	}
	result.RateLimit = rlResult

	if err := r.tenants.IncrementUsage(ctx, req.TenantID, exec.PromptTokens, exec.CompletionTokens); err != nil && r.logger != nil {
		r.logger.Errorw("Failed to increment tenant usage",
			"tenant_id", req.TenantID, "error", err)
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := r.cache.Set(ctx, key, string(payload)); err != nil && r.logger != nil {
			r.logger.Warnw("Failed to write cache entry", "key", key, "error", err)
		}
	}

	return result, nil
}

// execute runs the provider call and downstream pipeline for an already
// created execution record
func (r *Runner) execute(ctx context.Context, client provider.Client, project *Project, exec *Execution) (*RunResult, error) {
	names, err := r.store.TrackedNames(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	start := r.timeNow()
	resp, err := client.Complete(ctx, provider.Request{UserPrompt: exec.QueryText})
	if err != nil {
		return nil, errors.Wrapf(err, "provider %s", exec.Provider)
	}
	exec.DurationMs = r.timeNow().Sub(start).Milliseconds()
	exec.Model = resp.Model
	exec.ResponseText = resp.Text
	exec.PromptTokens = resp.Usage.PromptTokens
	exec.CompletionTokens = resp.Usage.CompletionTokens

	detected := mention.Detect(resp.Text, names)

	mentions := make([]*BrandMention, 0, len(detected))
	for _, d := range detected {
		sentiment := r.scorer.Score(ctx, d.Context)
		mentions = append(mentions, &BrandMention{
			ExecutionID:    exec.ID,
			ProjectID:      project.ID,
			Provider:       exec.Provider,
			MatchedName:    d.MatchedName,
			Type:           d.Type,
			Context:        d.Context,
			Competitors:    d.Competitors,
			Features:       d.Features,
			Position:       d.Position,
			SentimentLabel: sentiment.Label,
			SentimentScore: sentiment.Score,
		})
	}

	if err := r.store.CreateMentions(ctx, mentions); err != nil {
		return nil, err
	}

	exec.MentionCount = len(mentions)
	if err := r.store.CompleteExecution(ctx, exec); err != nil {
		return nil, err
	}

	if r.logger != nil {
		r.logger.Infow("Execution completed",
			"execution_id", exec.ID,
			"project_id", project.ID,
			"provider", exec.Provider,
			"mentions", len(mentions),
			"duration_ms", exec.DurationMs,
		)
	}

	return &RunResult{
		Execution: exec,
		Mentions:  mentions,
		Summary:   Summarize(mentions),
	}, nil
}

// resolveQuery materializes the query text from either a tracked query
// id or an inline custom query
func (r *Runner) resolveQuery(ctx context.Context, project *Project, req RunRequest) (queryID, queryText string, err error) {
	if req.QueryID != "" {
		q, err := r.store.GetQuery(ctx, req.QueryID)
		if err != nil {
			return "", "", err
		}
		if q.ProjectID != project.ID {
			return "", "", errors.Wrapf(errors.ErrNotFound, "query %s", req.QueryID)
		}
		return q.ID, q.QueryText, nil
	}
	if req.CustomQuery != "" {
		return "", req.CustomQuery, nil
	}
	return "", "", errors.Wrap(errors.ErrInvalidRequest, "either query_id or custom_query is required")
}

// InvalidateProject drops all cached results for a project. Called when
// project data (competitor list, brand name) changes so subsequent runs
// recompute against fresh tracked names.
func (r *Runner) InvalidateProject(ctx context.Context, projectID string) error {
	_, err := r.cache.InvalidatePrefix(ctx, "proj:"+projectID+":")
	return err
}
