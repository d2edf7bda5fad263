package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/brandlens/brandlens/errors"
)

// Tier is a single sliding-window constraint: at most Max requests
// within any interval of length Window.
type Tier struct {
	Window time.Duration
	Max    int
}

// Result reports the outcome of an admission check. When denied, Tier is
// the tier that denied and RetryAfter is how long until a slot opens.
// When allowed, Tier, Used, and Remaining describe the tightest tier's
// headroom. ResetAt is when the oldest in-window event slides out.
type Result struct {
	Allowed    bool
	Tier       Tier
	Used       int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration

	// FailedOpen is set when the counter store errored and the request
	// was admitted anyway because the guarded operation is cheap.
	FailedOpen bool
}

// TierSet groups the configured tiers by tenant plan, plus the
// service-wide tiers applied to every request.
type TierSet struct {
	Trial  []Tier
	Paid   []Tier
	Global []Tier
}

// Limiter enforces multi-tier sliding-window rate limits backed by a
// shared counter store.
type Limiter struct {
	store   CounterStore
	tiers   TierSet
	logger  *zap.SugaredLogger
	timeNow func() time.Time // Injectable for testing
}

// NewLimiter creates a limiter with real time
func NewLimiter(store CounterStore, tiers TierSet, logger *zap.SugaredLogger) *Limiter {
	return NewLimiterWithClock(store, tiers, logger, time.Now)
}

// NewLimiterWithClock creates a limiter with injectable clock (for testing)
func NewLimiterWithClock(store CounterStore, tiers TierSet, logger *zap.SugaredLogger, timeNow func() time.Time) *Limiter {
	return &Limiter{
		store:   store,
		tiers:   tiers,
		logger:  logger,
		timeNow: timeNow,
	}
}

// Check admits or denies one request for the identifier against the given
// tiers. A request is admitted only when every tier has headroom, and an
// admitted request counts against all tiers at once.
//
// When the counter store fails, expensive decides the failure mode: cheap
// operations fail open (admit and flag the result), expensive operations
// fail closed with ErrServiceUnavailable.
func (l *Limiter) Check(ctx context.Context, identifier string, tiers []Tier, expensive bool) (*Result, error) {
	result, err := l.store.Take(ctx, identifier, tiers, l.timeNow())
	if err != nil {
		if expensive {
			return nil, errors.Wrapf(errors.ErrServiceUnavailable, "rate limit store unavailable: %v", err)
		}
		if l.logger != nil {
			l.logger.Warnw("Rate limit store unavailable, failing open",
				"identifier", identifier,
				"error", err,
			)
		}
		return &Result{Allowed: true, FailedOpen: true}, nil
	}

	if !result.Allowed && l.logger != nil {
		l.logger.Debugw("Rate limit exceeded",
			"identifier", identifier,
			"window", result.Tier.Window,
			"max", result.Tier.Max,
			"retry_after", result.RetryAfter,
		)
	}

	return result, nil
}

// CheckTenant admits or denies one request for a tenant, applying the
// plan's tiers and then the global tiers. The global check only runs when
// the tenant check admits, so a denied tenant never consumes global slots.
func (l *Limiter) CheckTenant(ctx context.Context, tenantID, plan string, expensive bool) (*Result, error) {
	tiers := l.tiers.Paid
	if plan == "trial" {
		tiers = l.tiers.Trial
	}

	result, err := l.Check(ctx, "tenant:"+tenantID, tiers, expensive)
	if err != nil || !result.Allowed {
		return result, err
	}

	global, err := l.Check(ctx, "global", l.tiers.Global, expensive)
	if err != nil {
		return nil, err
	}
	if !global.Allowed {
		return global, nil
	}

	// Report the tenant's headroom; global limits are an operator
	// concern, not something callers should surface to tenants.
	result.FailedOpen = result.FailedOpen || global.FailedOpen
	return result, nil
}

// Reset clears recorded events for an identifier (useful for testing)
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	return l.store.Reset(ctx, identifier)
}
