package monitor

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/brandlens/brandlens/errors"
)

// MaxExecutionPageSize bounds ListExecutions regardless of what callers ask for
const MaxExecutionPageSize = 50

// Store handles persistence for projects, tracked queries, competitors,
// executions, and mentions
type Store struct {
	db      *sql.DB
	timeNow func() time.Time // Injectable for testing
}

// NewStore creates a monitor store
func NewStore(db *sql.DB) *Store {
	return NewStoreWithClock(db, time.Now)
}

// NewStoreWithClock creates a monitor store with injectable clock (for testing)
func NewStoreWithClock(db *sql.DB, timeNow func() time.Time) *Store {
	return &Store{db: db, timeNow: timeNow}
}

// CreateProject inserts a new project. Generates an id when empty.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.timeNow().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, tenant_id, brand_name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.BrandName, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create project")
	}
	return nil
}

// GetProject retrieves a project by id
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, brand_name, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.TenantID, &p.BrandName, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "project %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get project")
	}
	return &p, nil
}

// AddCompetitor adds a tracked competitor name to a project. Callers
// should invalidate the project's cache entries afterwards.
func (s *Store) AddCompetitor(ctx context.Context, c *Competitor) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = s.timeNow().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO competitors (id, project_id, name, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Name, c.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to add competitor")
	}
	return nil
}

// TrackedNames returns the project's brand name followed by its
// competitor names, the input order for mention detection
func (s *Store) TrackedNames(ctx context.Context, projectID string) ([]string, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM competitors WHERE project_id = ? ORDER BY created_at ASC`, projectID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list competitors")
	}
	defer rows.Close()

	names := []string{p.BrandName}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "failed to scan competitor")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating competitors")
	}
	return names, nil
}

// CreateQuery inserts a tracked query
func (s *Store) CreateQuery(ctx context.Context, q *TrackedQuery) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	q.CreatedAt = s.timeNow().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_queries (id, project_id, query_text, active, created_at) VALUES (?, ?, ?, ?, ?)`,
		q.ID, q.ProjectID, q.QueryText, q.Active, q.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create query")
	}
	return nil
}

// GetQuery retrieves a tracked query by id
func (s *Store) GetQuery(ctx context.Context, id string) (*TrackedQuery, error) {
	var q TrackedQuery
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, query_text, active, created_at FROM tracked_queries WHERE id = ?`, id,
	).Scan(&q.ID, &q.ProjectID, &q.QueryText, &q.Active, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "query %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get query")
	}
	return &q, nil
}

// ListActiveQueries returns a project's active queries in creation order
func (s *Store) ListActiveQueries(ctx context.Context, projectID string) ([]*TrackedQuery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, query_text, active, created_at
		 FROM tracked_queries WHERE project_id = ? AND active = 1 ORDER BY created_at ASC`, projectID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queries")
	}
	defer rows.Close()

	var queries []*TrackedQuery
	for rows.Next() {
		var q TrackedQuery
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.QueryText, &q.Active, &q.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan query")
		}
		queries = append(queries, &q)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating queries")
	}
	return queries, nil
}

// CreateExecution inserts a new running execution
func (s *Store) CreateExecution(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.Status == "" {
		exec.Status = StatusRunning
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = s.timeNow().UTC()
	}

	queryID := sql.NullString{String: exec.QueryID, Valid: exec.QueryID != ""}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_executions (
			id, project_id, query_id, query_text, provider, model, status,
			response_text, mention_count, cache_hit,
			prompt_tokens, completion_tokens, duration_ms, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.ProjectID, queryID, exec.QueryText, exec.Provider, exec.Model, exec.Status,
		exec.ResponseText, exec.MentionCount, exec.CacheHit,
		exec.PromptTokens, exec.CompletionTokens, exec.DurationMs, exec.StartedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}
	return nil
}

// CompleteExecution closes an execution as completed with its result fields
func (s *Store) CompleteExecution(ctx context.Context, exec *Execution) error {
	now := s.timeNow().UTC()
	exec.Status = StatusCompleted
	exec.CompletedAt = &now

	_, err := s.db.ExecContext(ctx,
		`UPDATE query_executions
		 SET status = ?, model = ?, response_text = ?, mention_count = ?,
		     prompt_tokens = ?, completion_tokens = ?, duration_ms = ?, completed_at = ?
		 WHERE id = ?`,
		exec.Status, exec.Model, exec.ResponseText, exec.MentionCount,
		exec.PromptTokens, exec.CompletionTokens, exec.DurationMs, now, exec.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to complete execution")
	}
	return nil
}

// FailExecution closes an execution as failed with the captured error
func (s *Store) FailExecution(ctx context.Context, id, errMsg string) error {
	now := s.timeNow().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE query_executions SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		StatusFailed, errMsg, now, id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to fail execution")
	}
	return nil
}

// GetExecution retrieves an execution by id
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	query := `SELECT ` + StandardExecutionSelectColumns() + ` FROM query_executions WHERE id = ?`

	var exec Execution
	err := ScanExecutionFromRow(s.db.QueryRowContext(ctx, query, id), &exec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "execution %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution")
	}
	return &exec, nil
}

// ListExecutions returns a project's executions, newest first. The page
// size is clamped to MaxExecutionPageSize; offset skips past newer pages.
func (s *Store) ListExecutions(ctx context.Context, projectID string, limit, offset int) ([]*Execution, error) {
	if limit <= 0 || limit > MaxExecutionPageSize {
		limit = MaxExecutionPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + StandardExecutionSelectColumns() + `
		FROM query_executions WHERE project_id = ?
		ORDER BY started_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		var exec Execution
		if err := ScanExecutionFromRows(rows, &exec); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution")
		}
		execs = append(execs, &exec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating executions")
	}
	return execs, nil
}

// CreateMentions inserts an execution's mentions in one transaction
func (s *Store) CreateMentions(ctx context.Context, mentions []*BrandMention) error {
	if len(mentions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin mentions tx")
	}
	defer tx.Rollback()

	now := s.timeNow().UTC()
	for _, m := range mentions {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		m.CreatedAt = now

		if m.SentimentScore < -1 || m.SentimentScore > 1 {
			return errors.Newf("sentiment score %f out of range for mention %s", m.SentimentScore, m.ID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO brand_mentions (
				id, execution_id, project_id, provider, matched_name, mention_type,
				context, competitors, features, position,
				sentiment_label, sentiment_score, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.ExecutionID, m.ProjectID, m.Provider, m.MatchedName, m.Type,
			m.Context, marshalNames(m.Competitors), marshalNames(m.Features), m.Position,
			m.SentimentLabel, m.SentimentScore, m.CreatedAt,
		); err != nil {
			return errors.Wrap(err, "failed to insert mention")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit mentions tx")
	}
	return nil
}

// ListMentions returns an execution's mentions in position order
func (s *Store) ListMentions(ctx context.Context, executionID string) ([]*BrandMention, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, project_id, provider, matched_name, mention_type,
		        context, competitors, features, position,
		        sentiment_label, sentiment_score, created_at
		 FROM brand_mentions WHERE execution_id = ? ORDER BY position ASC`, executionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list mentions")
	}
	defer rows.Close()

	var mentions []*BrandMention
	for rows.Next() {
		var m BrandMention
		var competitors, features string
		if err := rows.Scan(
			&m.ID, &m.ExecutionID, &m.ProjectID, &m.Provider, &m.MatchedName, &m.Type,
			&m.Context, &competitors, &features, &m.Position,
			&m.SentimentLabel, &m.SentimentScore, &m.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan mention")
		}
		if m.Competitors, err = unmarshalNames(competitors); err != nil {
			return nil, errors.Wrapf(err, "mention %s competitors", m.ID)
		}
		if m.Features, err = unmarshalNames(features); err != nil {
			return nil, errors.Wrapf(err, "mention %s features", m.ID)
		}
		mentions = append(mentions, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating mentions")
	}
	return mentions, nil
}
