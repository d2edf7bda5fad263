package queue

import (
	"database/sql"
	"time"

	"github.com/brandlens/brandlens/errors"
)

// Store handles persistence of monitoring jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new monitoring job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO monitoring_jobs (
			id, tenant_id, project_id, query_ids, providers,
			status, progress_current, progress_total, attempts, max_attempts,
			execution_ids, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	queryIDs, err := encodeIDList(job.QueryIDs)
	if err != nil {
		return err
	}
	providers, err := encodeIDList(job.Providers)
	if err != nil {
		return err
	}
	executionIDs, err := encodeIDList(job.ExecutionIDs)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(query,
		job.ID,
		job.TenantID,
		job.ProjectID,
		queryIDs,
		providers,
		job.Status,
		job.Progress.Current,
		job.Progress.Total,
		job.Attempts,
		job.MaxAttempts,
		executionIDs,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM monitoring_jobs WHERE id = ?`

	var job Job
	err := ScanJobFromRow(s.db.QueryRow(query, id), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	return &job, nil
}

// UpdateJob updates an existing job in the database. QueryIDs and
// Providers are fixed at creation and never rewritten.
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE monitoring_jobs
		SET status = ?,
		    progress_current = ?,
		    progress_total = ?,
		    attempts = ?,
		    execution_ids = ?,
		    error = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	executionIDs, err := encodeIDList(job.ExecutionIDs)
	if err != nil {
		return err
	}
	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}

	_, err = s.db.Exec(query,
		job.Status,
		job.Progress.Current,
		job.Progress.Total,
		job.Attempts,
		executionIDs,
		errMsg,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}

	return nil
}

// ClaimJob transitions a job from queued to running, but only if it is
// still queued. Another process sharing the database may have claimed it
// since it was read; a false return means the claim was lost.
func (s *Store) ClaimJob(job *Job) (bool, error) {
	query := `
		UPDATE monitoring_jobs
		SET status = ?,
		    attempts = ?,
		    started_at = ?,
		    updated_at = ?
		WHERE id = ? AND status = 'queued'
	`

	result, err := s.db.Exec(query,
		job.Status,
		job.Attempts,
		job.StartedAt,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to claim job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}

	return rows > 0, nil
}

// ListJobs returns jobs newest first, optionally filtered by status
func (s *Store) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT ` + StandardJobSelectColumns() + ` FROM monitoring_jobs`
	if status != nil {
		query = baseQuery + ` WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{*status, limit}
	} else {
		query = baseQuery + ` ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// ListQueuedJobs returns queued jobs oldest first, the claim order
func (s *Store) ListQueuedJobs(limit int) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM monitoring_jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queued jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "queued jobs")
}

// ListActiveJobs returns all jobs that are currently queued or running
func (s *Store) ListActiveJobs(limit int) ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM monitoring_jobs
		WHERE status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "active jobs")
}

// scanJobs is a helper that scans multiple jobs from query rows
func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := ScanJobFromRows(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return jobs, nil
}

// DeleteJob removes a job from the database
func (s *Store) DeleteJob(id string) error {
	result, err := s.db.Exec(`DELETE FROM monitoring_jobs WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}

	return nil
}

// CleanupOldJobs removes terminal jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM monitoring_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < ?
	`

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// CountByStatus returns job counts keyed by status
func (s *Store) CountByStatus() (map[JobStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM monitoring_jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}

	return counts, nil
}
