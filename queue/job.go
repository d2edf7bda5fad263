// Package queue provides the durable monitoring job queue and its worker pool.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/brandlens/brandlens/errors"
)

// JobStatus represents the current state of a monitoring job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true once a job can no longer change state
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// DefaultMaxAttempts is the attempt budget per job, including the first run
const DefaultMaxAttempts = 3

// Progress is the job's per-query cursor: Current queries of Total have
// fully executed. It survives retries and orphan recovery, so a resumed
// attempt picks up at the next unprocessed query instead of repeating
// finished ones.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Job is one queued monitoring run over a project. QueryIDs selects a
// subset of the project's tracked queries, in the order they should run;
// empty means every active query at execution time. Providers lists the
// providers each query runs against; empty means the default provider.
type Job struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	ProjectID    string     `json:"project_id"`
	QueryIDs     []string   `json:"query_ids,omitempty"`
	Providers    []string   `json:"providers,omitempty"`
	Status       JobStatus  `json:"status"`
	Progress     Progress   `json:"progress"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	ExecutionIDs []string   `json:"execution_ids,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewJob creates a queued monitoring job for a project. Both queryIDs
// and providers may be nil for "all active queries" and "default
// provider" respectively. Enqueue assigns the attempt budget.
func NewJob(tenantID, projectID string, queryIDs, providers []string) (*Job, error) {
	if tenantID == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "tenant_id cannot be empty")
	}
	if projectID == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "project_id cannot be empty")
	}
	for _, id := range queryIDs {
		if id == "" {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "query_ids cannot contain an empty id")
		}
	}
	for _, p := range providers {
		if p == "" {
			return nil, errors.Wrap(errors.ErrInvalidRequest, "providers cannot contain an empty name")
		}
	}

	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		ProjectID:   projectID,
		QueryIDs:    queryIDs,
		Providers:   providers,
		Status:      JobStatusQueued,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job as running and burns one attempt
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.Attempts++
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.UpdatedAt = now
}

// Advance records the per-query cursor and the executions produced so far
func (j *Job) Advance(current, total int, executionIDs []string) {
	j.Progress = Progress{Current: current, Total: total}
	j.ExecutionIDs = executionIDs
	j.UpdatedAt = time.Now()
}

// Complete marks the job as completed, linking the executions it produced
func (j *Job) Complete(executionIDs []string) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.ExecutionIDs = executionIDs
	j.Progress.Current = j.Progress.Total
	j.Error = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail records a failed attempt. While attempts remain the job goes back
// to queued for retry; on the last attempt it fails terminally with the
// error preserved. The progress cursor is kept either way, so a retry
// resumes at the query that failed.
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Error = err.Error()
	if j.Attempts < j.MaxAttempts {
		j.Status = JobStatusQueued
	} else {
		j.Status = JobStatusFailed
		j.CompletedAt = &now
	}
	j.UpdatedAt = now
}

// Cancel marks the job as cancelled with a reason
func (j *Job) Cancel(reason string) {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// RetryBackoff returns how long to wait before re-running a job that
// failed on its most recent attempt. Doubles per attempt from one second.
func (j *Job) RetryBackoff() time.Duration {
	backoff := time.Second
	for i := 1; i < j.Attempts; i++ {
		backoff *= 2
	}
	return backoff
}
