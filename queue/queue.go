package queue

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/brandlens/brandlens/errors"
)

const (
	// MaxJobsLimit is the maximum number of jobs counted in stats queries
	MaxJobsLimit = 10000
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
	// dequeueCandidates bounds how many queued jobs a single claim inspects
	// while skipping jobs still inside their retry backoff
	dequeueCandidates = 16
)

// Queue is the durable monitoring job queue. All state lives in SQLite so
// queued work survives restarts.
type Queue struct {
	store       *Store
	mu          sync.RWMutex
	subscribers []chan *Job // Channels to notify of job updates
	timeNow     func() time.Time
	maxAttempts int
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		store:       NewStore(db),
		subscribers: make([]chan *Job, 0),
		timeNow:     time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
}

// NewQueueWithClock creates a queue with an injectable clock for tests
func NewQueueWithClock(db *sql.DB, timeNow func() time.Time) *Queue {
	q := NewQueue(db)
	q.timeNow = timeNow
	return q
}

// SetMaxAttempts overrides the attempt budget Enqueue assigns to jobs
func (q *Queue) SetMaxAttempts(n int) {
	if n > 0 {
		q.mu.Lock()
		q.maxAttempts = n
		q.mu.Unlock()
	}
}

// Enqueue adds a new job to the queue, assigning its attempt budget
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.MaxAttempts = q.maxAttempts

	if err := q.store.CreateJob(job); err != nil {
		err = errors.Wrap(err, "failed to enqueue job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Tenant: %s", job.TenantID))
		err = errors.WithDetail(err, fmt.Sprintf("Project: %s", job.ProjectID))
		return err
	}

	// Notify subscribers of new job
	q.notifySubscribers(job)

	return nil
}

// Dequeue claims the next eligible queued job and marks it as running.
// Jobs that failed a previous attempt stay invisible until their retry
// backoff has elapsed. Returns nil when nothing is claimable.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	jobs, err := q.store.ListQueuedJobs(dequeueCandidates)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queued jobs")
	}

	now := q.timeNow()
	for _, candidate := range jobs {
		if candidate.Attempts > 0 && now.Sub(candidate.UpdatedAt) < candidate.RetryBackoff() {
			continue // still backing off
		}

		candidate.Start()

		// The claim is conditional on the row still being queued: a
		// worker pool in another process over the same database may
		// have claimed it between the read and this write.
		claimed, err := q.store.ClaimJob(candidate)
		if err != nil {
			err = errors.Wrap(err, "failed to mark job as running")
			err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", candidate.ID))
			err = errors.WithDetail(err, fmt.Sprintf("Attempt: %d/%d", candidate.Attempts, candidate.MaxAttempts))
			return nil, err
		}
		if !claimed {
			continue // lost the claim
		}

		// Notify subscribers of job update
		q.notifySubscribers(candidate)

		return candidate, nil
	}

	return nil, nil // No jobs available
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.GetJob(id)
}

// UpdateJob updates a job's state
func (q *Queue) UpdateJob(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to update job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Status: %s", job.Status))
		return err
	}

	// Notify subscribers of job update
	q.notifySubscribers(job)

	return nil
}

// CompleteJob marks a job as completed, linking the executions it produced
func (q *Queue) CompleteJob(id string, executionIDs []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to complete job %s", id)
	}

	job.Complete(executionIDs)

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to complete job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Executions: %d", len(executionIDs)))
		return err
	}

	// Notify subscribers of job update
	q.notifySubscribers(job)

	return nil
}

// FailJob records a failed attempt. The job is re-queued while attempts
// remain and fails terminally on the last one.
func (q *Queue) FailJob(id string, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s as failed", id)
	}

	job.Fail(jobErr)

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to mark job as failed")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Attempt: %d/%d", job.Attempts, job.MaxAttempts))
		err = errors.WithDetail(err, fmt.Sprintf("Job error: %s", jobErr.Error()))
		return err
	}

	// Notify subscribers of job update
	q.notifySubscribers(job)

	return nil
}

// CancelJob cancels a job that has not finished. Only queued jobs can be
// cancelled; a running worker owns its job until the attempt resolves.
func (q *Queue) CancelJob(id string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to cancel job %s", id)
	}

	if job.Status != JobStatusQueued {
		err := errors.Wrapf(errors.ErrInvalidRequest, "job %s is not queued (status: %s)", id, job.Status)
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", id))
		err = errors.WithDetail(err, fmt.Sprintf("Current status: %s", job.Status))
		return err
	}

	job.Cancel(reason)

	if err := q.store.UpdateJob(job); err != nil {
		err = errors.Wrap(err, "failed to cancel job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		return err
	}

	// Notify subscribers of job update
	q.notifySubscribers(job)

	return nil
}

// ListJobs returns jobs, optionally filtered by status
func (q *Queue) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListJobs(status, limit)
}

// ListActiveJobs returns all active (queued, running) jobs
func (q *Queue) ListActiveJobs(limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListActiveJobs(limit)
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends job updates to all subscribers.
// REQUIRES: q.mu must be held by caller (either Lock or RLock).
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (q *Queue) notifySubscribers(job *Job) {
	for _, ch := range q.subscribers {
		select {
		case ch <- job:
		default:
			// Channel full, skip
		}
	}
}

// Cleanup removes terminal jobs older than the retention window
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.CleanupOldJobs(olderThan)
}

// QueueStats returns statistics about the queue
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats() (*QueueStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	counts, err := q.store.CountByStatus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queue stats")
	}

	stats := &QueueStats{
		Queued:    counts[JobStatusQueued],
		Running:   counts[JobStatusRunning],
		Completed: counts[JobStatusCompleted],
		Failed:    counts[JobStatusFailed],
		Cancelled: counts[JobStatusCancelled],
	}
	for _, count := range counts {
		stats.Total += count
	}

	return stats, nil
}
