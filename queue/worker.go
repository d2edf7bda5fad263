package queue

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brandlens/brandlens/config"
	"github.com/brandlens/brandlens/db"
	"github.com/brandlens/brandlens/errors"
	"github.com/brandlens/brandlens/monitor"
)

const (
	// MaxOrphanedJobsToRecover limits how many orphaned jobs we'll attempt
	// to recover on startup after a crash
	MaxOrphanedJobsToRecover = 1000

	// defaultMaintenanceInterval is how often terminal jobs and expired
	// cache entries are pruned
	defaultMaintenanceInterval = time.Hour
)

// ProgressFunc receives the per-query cursor and the executions produced
// so far while a job attempt runs
type ProgressFunc func(current, total int, executionIDs []string)

// JobExecutor runs one job attempt, reporting progress after each query,
// and returns all execution ids the job has produced
type JobExecutor interface {
	Execute(ctx context.Context, job *Job, progress ProgressFunc) ([]string, error)
}

// CachePruner removes expired entries; the result cache satisfies it
type CachePruner interface {
	Prune(ctx context.Context) (int, error)
}

// RunnerExecutor adapts a monitor.Runner to the JobExecutor interface
type RunnerExecutor struct {
	runner *monitor.Runner
	store  *monitor.Store
}

// NewRunnerExecutor wraps a runner for use by the worker pool. The store
// resolves a job's query set when it does not name one explicitly.
func NewRunnerExecutor(runner *monitor.Runner, store *monitor.Store) *RunnerExecutor {
	return &RunnerExecutor{runner: runner, store: store}
}

// Execute runs the job's queries in attached order through the
// orchestrator, each against every listed provider. A job without an
// explicit query set runs all of the project's active queries. Execution
// resumes at the job's progress cursor, so queries finished by an
// earlier attempt are not repeated.
func (e *RunnerExecutor) Execute(ctx context.Context, job *Job, progress ProgressFunc) ([]string, error) {
	queryIDs := job.QueryIDs
	if len(queryIDs) == 0 {
		queries, err := e.store.ListActiveQueries(ctx, job.ProjectID)
		if err != nil {
			return nil, err
		}
		for _, q := range queries {
			queryIDs = append(queryIDs, q.ID)
		}
	}
	if len(queryIDs) == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "project %s has no active queries", job.ProjectID)
	}

	providers := job.Providers
	if len(providers) == 0 {
		providers = []string{""} // dispatcher default
	}

	executionIDs := append([]string(nil), job.ExecutionIDs...)
	total := len(queryIDs)
	start := job.Progress.Current
	if start > total {
		start = total
	}
	progress(start, total, executionIDs)

	for i := start; i < total; i++ {
		for _, providerName := range providers {
			result, err := e.runner.Run(ctx, monitor.RunRequest{
				TenantID:  job.TenantID,
				ProjectID: job.ProjectID,
				QueryID:   queryIDs[i],
				Provider:  providerName,
			})
			if err != nil {
				return executionIDs, err
			}
			if result.Execution != nil {
				executionIDs = append(executionIDs, result.Execution.ID)
			}
		}
		progress(i+1, total, executionIDs)
	}

	return executionIDs, nil
}

// WorkerPool manages a pool of workers that process monitoring jobs.
// Provider call pacing is a shared token bucket, so the aggregate call
// rate is independent of the worker count.
type WorkerPool struct {
	queue            *Queue
	executor         JobExecutor
	pacer            *rate.Limiter // nil disables pacing
	pruner           CachePruner   // nil disables cache pruning
	cfg              config.WorkerConfig
	pollInterval     time.Duration
	maintenanceEvery time.Duration
	workers          int
	parentCtx        context.Context
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
	logger           *zap.SugaredLogger
	mu               sync.Mutex
}

// NewWorkerPool creates a worker pool over the given queue
func NewWorkerPool(db *sql.DB, cfg config.WorkerConfig, executor JobExecutor, logger *zap.SugaredLogger) *WorkerPool {
	return NewWorkerPoolWithContext(context.Background(), db, cfg, executor, logger)
}

// NewWorkerPoolWithContext creates a worker pool with a custom parent
// context. Cancelling the parent context stops the workers.
func NewWorkerPoolWithContext(ctx context.Context, db *sql.DB, cfg config.WorkerConfig, executor JobExecutor, logger *zap.SugaredLogger) *WorkerPool {
	workerCtx, cancel := context.WithCancel(ctx)

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var pacer *rate.Limiter
	if cfg.ProviderCallsPerMin > 0 {
		burst := cfg.ProviderCallBurst
		if burst < 1 {
			burst = 1
		}
		pacer = rate.NewLimiter(rate.Limit(cfg.ProviderCallsPerMin/60.0), burst)
	}

	pollInterval := cfg.PollInterval()
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	jobQueue := NewQueue(db)
	jobQueue.SetMaxAttempts(cfg.MaxAttempts)

	return &WorkerPool{
		queue:            jobQueue,
		executor:         executor,
		pacer:            pacer,
		cfg:              cfg,
		pollInterval:     pollInterval,
		maintenanceEvery: defaultMaintenanceInterval,
		workers:          workers,
		parentCtx:        ctx,
		ctx:              workerCtx,
		cancel:           cancel,
		logger:           logger.Named("worker"),
	}
}

// SetPruner attaches a cache pruner that runs on the maintenance cadence.
// Call before Start.
func (wp *WorkerPool) SetPruner(p CachePruner) {
	wp.pruner = p
}

// Start recovers orphaned jobs and begins processing
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	// Recreate the context if a previous Stop() cancelled it
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Debugw("Recreated worker context after previous shutdown")
	default:
	}
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		wp.logger.Warnw("Failed to recover orphaned jobs", "error", err)
		// Continue starting workers even if recovery fails
	}

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.wg.Add(1)
	go wp.maintenance()

	wp.logger.Infow("Worker pool started",
		"workers", wp.workers,
		"poll_interval", wp.pollInterval,
		"provider_calls_per_min", wp.cfg.ProviderCallsPerMin)
}

// Stop gracefully stops the worker pool, waiting for in-flight jobs
func (wp *WorkerPool) Stop() {
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.logger.Infow("Worker pool stopped - all workers exited cleanly")
	case <-time.After(timeout):
		wp.logger.Warnw("Worker pool stop timeout - workers may still be finishing", "timeout", timeout)
	}
}

// recoverOrphanedJobs re-queues jobs stuck in "running" state after an
// ungraceful shutdown. The interrupted attempt does not count against the
// job's attempt budget.
func (wp *WorkerPool) recoverOrphanedJobs() error {
	runningStatus := JobStatusRunning
	orphaned, err := wp.queue.ListJobs(&runningStatus, MaxOrphanedJobsToRecover)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}

	if len(orphaned) == 0 {
		return nil
	}

	wp.logger.Infow("Recovering orphaned jobs from previous shutdown", "count", len(orphaned))

	for _, job := range orphaned {
		job.Status = JobStatusQueued
		if job.Attempts > 0 {
			job.Attempts--
		}
		job.Error = ""
		job.UpdatedAt = time.Now()
		if err := wp.queue.UpdateJob(job); err != nil {
			wp.logger.Warnw("Failed to recover orphaned job", "job_id", job.ID, "error", err)
			continue
		}
		wp.logger.Debugw("Recovered orphaned job", "job_id", job.ID)
	}

	return nil
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	// Error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoffDuration := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if err := wp.processNextJob(); err != nil {
				select {
				case <-wp.ctx.Done():
					return
				default:
				}
				if errors.Is(err, sql.ErrConnDone) || db.IsDatabaseClosed(err) {
					// Database closed during shutdown
					return
				}
				errorCount++
				wp.logger.Errorw("Worker error processing job",
					"worker_id", id,
					"error", err,
					"consecutive_errors", errorCount)

				if errorCount >= maxConsecutiveErrors {
					wp.logger.Warnw("Worker backing off due to consecutive errors",
						"worker_id", id,
						"backoff", backoffDuration)
					time.Sleep(backoffDuration)
					backoffDuration = min(backoffDuration*2, maxBackoff)
				}
			} else {
				if errorCount > 0 {
					wp.logger.Infow("Worker recovered from errors",
						"worker_id", id,
						"previous_error_count", errorCount)
				}
				errorCount = 0
				backoffDuration = time.Second
			}
		}
	}
}

// processNextJob claims and runs the next eligible job
func (wp *WorkerPool) processNextJob() error {
	select {
	case <-wp.ctx.Done():
		return nil
	default:
	}

	job, err := wp.queue.Dequeue()
	if err != nil {
		return errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return nil // No jobs available
	}

	// Aggregate provider-call pacing. A paced-out job goes back to the
	// queue without burning its attempt.
	if wp.pacer != nil && !wp.pacer.Allow() {
		job.Status = JobStatusQueued
		job.Attempts--
		job.UpdatedAt = time.Now()
		return wp.queue.UpdateJob(job)
	}

	// Progress is persisted as the executor advances, so a retry or an
	// orphan recovery resumes from the cursor instead of starting over
	report := func(current, total int, executionIDs []string) {
		job.Advance(current, total, executionIDs)
		if err := wp.queue.UpdateJob(job); err != nil {
			wp.logger.Warnw("Failed to record job progress", "job_id", job.ID, "error", err)
		}
	}

	executionIDs, execErr := wp.executor.Execute(wp.ctx, job, report)
	if execErr != nil {
		select {
		case <-wp.ctx.Done():
			// Shutdown during execution: re-queue without burning the attempt
			wp.logger.Warnw("Job interrupted by shutdown, re-queuing", "job_id", job.ID)
			job.Status = JobStatusQueued
			if job.Attempts > 0 {
				job.Attempts--
			}
			job.UpdatedAt = time.Now()
			if updateErr := wp.queue.UpdateJob(job); updateErr != nil {
				wp.logger.Errorw("Failed to re-queue interrupted job", "job_id", job.ID, "error", updateErr)
			}
			return nil
		default:
		}

		wp.logger.Warnw("Job attempt failed",
			"job_id", job.ID,
			"attempt", job.Attempts,
			"max_attempts", job.MaxAttempts,
			"error", execErr)
		return wp.queue.FailJob(job.ID, execErr)
	}

	wp.logger.Infow("Job completed",
		"job_id", job.ID,
		"executions", len(executionIDs),
		"attempts", job.Attempts)
	return wp.queue.CompleteJob(job.ID, executionIDs)
}

// maintenance periodically prunes terminal jobs past the retention
// window and expired cache entries
func (wp *WorkerPool) maintenance() {
	defer wp.wg.Done()

	retention := wp.cfg.Retention()
	if retention <= 0 && wp.pruner == nil {
		return
	}

	ticker := time.NewTicker(wp.maintenanceEvery)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			if retention > 0 {
				pruned, err := wp.queue.Cleanup(wp.ctx, retention)
				if err != nil {
					wp.logger.Warnw("Failed to prune old jobs", "error", err)
				} else if pruned > 0 {
					wp.logger.Infow("Pruned old jobs", "count", pruned, "retention", retention)
				}
			}
			if wp.pruner != nil {
				pruned, err := wp.pruner.Prune(wp.ctx)
				if err != nil {
					wp.logger.Warnw("Failed to prune expired cache entries", "error", err)
				} else if pruned > 0 {
					wp.logger.Debugw("Pruned expired cache entries", "count", pruned)
				}
			}
		}
	}
}

// GetQueue returns the job queue (useful for enqueuing jobs)
func (wp *WorkerPool) GetQueue() *Queue {
	return wp.queue
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.workers
}
