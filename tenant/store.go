package tenant

import (
	"context"
	"database/sql"
	"time"

	"github.com/brandlens/brandlens/errors"
)

// Store handles tenant and usage persistence
type Store struct {
	db      *sql.DB
	timeNow func() time.Time // Injectable for testing
}

// NewStore creates a tenant store
func NewStore(db *sql.DB) *Store {
	return NewStoreWithClock(db, time.Now)
}

// NewStoreWithClock creates a tenant store with injectable clock (for testing)
func NewStoreWithClock(db *sql.DB, timeNow func() time.Time) *Store {
	return &Store{db: db, timeNow: timeNow}
}

// Create inserts a new tenant. An empty quota takes the plan's default.
func (s *Store) Create(ctx context.Context, t *Tenant) error {
	if !t.Plan.Valid() {
		return errors.Newf("invalid plan %q", t.Plan)
	}
	if t.MonthlyQueryQuota == 0 {
		t.MonthlyQueryQuota = t.Plan.DefaultQuota()
	}

	now := s.timeNow().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, plan, monthly_query_quota, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Plan, t.MonthlyQueryQuota, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create tenant")
	}
	return nil
}

// Get retrieves a tenant by id
func (s *Store) Get(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, plan, monthly_query_quota, created_at, updated_at
		 FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Plan, &t.MonthlyQueryQuota, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "tenant %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant")
	}
	return &t, nil
}

// CheckQuota returns the tenant's budget position for the current period.
// Returns ErrQuotaExceeded (with the status attached) when the budget is
// spent; callers must not create execution records in that case.
func (s *Store) CheckQuota(ctx context.Context, tenantID string) (*QuotaStatus, error) {
	t, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	period := usagePeriod(s.timeNow())

	var used int
	err = s.db.QueryRowContext(ctx,
		`SELECT queries_used FROM tenant_usage WHERE tenant_id = ? AND period = ?`,
		tenantID, period,
	).Scan(&used)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "failed to read tenant usage")
	}

	status := &QuotaStatus{
		Used:      used,
		Limit:     t.MonthlyQueryQuota,
		Remaining: t.MonthlyQueryQuota - used,
		Period:    period,
	}
	if status.Remaining < 0 {
		status.Remaining = 0
	}

	if used >= t.MonthlyQueryQuota {
		return status, errors.Wrapf(errors.ErrQuotaExceeded,
			"tenant %s used %d of %d queries this period", tenantID, used, t.MonthlyQueryQuota)
	}

	return status, nil
}

// IncrementUsage records one executed query plus its token consumption
// against the current period
func (s *Store) IncrementUsage(ctx context.Context, tenantID string, promptTokens, completionTokens int) error {
	now := s.timeNow().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_usage (tenant_id, period, queries_used, prompt_tokens, completion_tokens, updated_at)
		 VALUES (?, ?, 1, ?, ?, ?)
		 ON CONFLICT(tenant_id, period) DO UPDATE SET
		   queries_used = queries_used + 1,
		   prompt_tokens = prompt_tokens + excluded.prompt_tokens,
		   completion_tokens = completion_tokens + excluded.completion_tokens,
		   updated_at = excluded.updated_at`,
		tenantID, usagePeriod(now), promptTokens, completionTokens, now,
	)
	if err != nil {
		return errors.Wrap(err, "failed to increment tenant usage")
	}
	return nil
}
