package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/brandlens/cache"
	"github.com/brandlens/brandlens/config"
	"github.com/brandlens/brandlens/db"
	"github.com/brandlens/brandlens/errors"
	"github.com/brandlens/brandlens/mention"
	"github.com/brandlens/brandlens/monitor"
	"github.com/brandlens/brandlens/provider"
	"github.com/brandlens/brandlens/ratelimit"
	"github.com/brandlens/brandlens/tenant"
)

// scriptedExecutor fails a fixed number of attempts before succeeding
type scriptedExecutor struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (e *scriptedExecutor) Execute(ctx context.Context, job *Job, progress ProgressFunc) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.calls <= e.failures {
		return nil, errors.Newf("provider timeout on call %d", e.calls)
	}
	ids := []string{fmt.Sprintf("exec-%d", e.calls)}
	progress(1, 1, ids)
	return ids, nil
}

func (e *scriptedExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// resumeExecutor walks the job's queries honoring the progress cursor,
// failing once at a chosen query index to exercise mid-job retry
type resumeExecutor struct {
	mu     sync.Mutex
	failAt int
	failed bool
	ran    []string
}

func (e *resumeExecutor) Execute(ctx context.Context, job *Job, progress ProgressFunc) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := len(job.QueryIDs)
	ids := append([]string(nil), job.ExecutionIDs...)
	for i := job.Progress.Current; i < total; i++ {
		if !e.failed && i == e.failAt {
			e.failed = true
			return ids, errors.New("provider timeout")
		}
		e.ran = append(e.ran, job.QueryIDs[i])
		ids = append(ids, "exec-"+job.QueryIDs[i])
		progress(i+1, total, ids)
	}
	return ids, nil
}

func (e *resumeExecutor) Ran() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ran...)
}

// countingPruner records maintenance-driven prune calls
type countingPruner struct {
	mu    sync.Mutex
	calls int
}

func (p *countingPruner) Prune(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return 0, nil
}

func (p *countingPruner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testPool(t *testing.T, cfg config.WorkerConfig, executor JobExecutor) *WorkerPool {
	t.Helper()
	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)

	pool := NewWorkerPool(database, cfg, executor, nil)
	pool.pollInterval = 10 * time.Millisecond
	// Skew the queue clock forward so retry backoffs are already elapsed
	// and the tests run on poll cadence instead of wall-clock backoff
	pool.queue.timeNow = func() time.Time { return time.Now().Add(time.Hour) }

	t.Cleanup(func() {
		pool.Stop()
		database.Close()
	})
	return pool
}

func waitForStatus(t *testing.T, q *Queue, jobID string, want JobStatus) *Job {
	t.Helper()
	var got *Job
	require.Eventually(t, func() bool {
		job, err := q.GetJob(jobID)
		if err != nil {
			return false
		}
		got = job
		return job.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job %s never reached status %s", jobID, want)
	return got
}

func TestWorkerPool_ProcessesJob(t *testing.T) {
	executor := &scriptedExecutor{}
	pool := testPool(t, config.WorkerConfig{Workers: 1}, executor)
	pool.Start()

	job := mustJob(t)
	require.NoError(t, pool.GetQueue().Enqueue(job))

	done := waitForStatus(t, pool.GetQueue(), job.ID, JobStatusCompleted)
	assert.Equal(t, []string{"exec-1"}, done.ExecutionIDs)
	assert.Equal(t, 1, done.Attempts)
	assert.Equal(t, 1, executor.Calls())
}

func TestWorkerPool_RetriesThenSucceeds(t *testing.T) {
	executor := &scriptedExecutor{failures: 2}
	pool := testPool(t, config.WorkerConfig{Workers: 1}, executor)
	pool.Start()

	job := mustJob(t)
	require.NoError(t, pool.GetQueue().Enqueue(job))

	done := waitForStatus(t, pool.GetQueue(), job.ID, JobStatusCompleted)
	assert.Equal(t, 3, done.Attempts)
	assert.Equal(t, []string{"exec-3"}, done.ExecutionIDs)
	assert.Empty(t, done.Error)
	assert.Equal(t, 3, executor.Calls())
}

func TestWorkerPool_TerminalFailurePreservesLastError(t *testing.T) {
	executor := &scriptedExecutor{failures: 100}
	pool := testPool(t, config.WorkerConfig{Workers: 1}, executor)
	pool.Start()

	job := mustJob(t)
	require.NoError(t, pool.GetQueue().Enqueue(job))

	done := waitForStatus(t, pool.GetQueue(), job.ID, JobStatusFailed)
	assert.Equal(t, 3, done.Attempts)
	assert.Contains(t, done.Error, "provider timeout on call 3")
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 3, executor.Calls(), "attempt budget is respected")
}

func TestWorkerPool_ConfiguredAttemptBudget(t *testing.T) {
	executor := &scriptedExecutor{failures: 100}
	pool := testPool(t, config.WorkerConfig{Workers: 1, MaxAttempts: 2}, executor)
	pool.Start()

	job := mustJob(t)
	require.NoError(t, pool.GetQueue().Enqueue(job))

	done := waitForStatus(t, pool.GetQueue(), job.ID, JobStatusFailed)
	assert.Equal(t, 2, done.MaxAttempts)
	assert.Equal(t, 2, done.Attempts)
	assert.Equal(t, 2, executor.Calls())
}

func TestWorkerPool_ResumesFromProgressCursor(t *testing.T) {
	executor := &resumeExecutor{failAt: 1}
	pool := testPool(t, config.WorkerConfig{Workers: 1}, executor)
	pool.Start()

	job, err := NewJob("t1", "p1", []string{"q1", "q2", "q3"}, nil)
	require.NoError(t, err)
	require.NoError(t, pool.GetQueue().Enqueue(job))

	done := waitForStatus(t, pool.GetQueue(), job.ID, JobStatusCompleted)

	// The first attempt finished q1 and failed before q2; the retry
	// resumed at the cursor, so no query ran twice
	assert.Equal(t, []string{"q1", "q2", "q3"}, executor.Ran())
	assert.Equal(t, Progress{Current: 3, Total: 3}, done.Progress)
	assert.Equal(t, []string{"exec-q1", "exec-q2", "exec-q3"}, done.ExecutionIDs)
	assert.Equal(t, 2, done.Attempts)
}

func TestWorkerPool_RecoversOrphanedJobs(t *testing.T) {
	executor := &scriptedExecutor{}
	pool := testPool(t, config.WorkerConfig{Workers: 1}, executor)

	// Simulate a job left running by an ungraceful shutdown
	orphan := mustJob(t)
	require.NoError(t, pool.GetQueue().Enqueue(orphan))
	orphan.Status = JobStatusRunning
	orphan.Attempts = 1
	now := time.Now()
	orphan.StartedAt = &now
	orphan.UpdatedAt = now
	require.NoError(t, pool.GetQueue().UpdateJob(orphan))

	pool.Start()

	// The interrupted attempt does not count against the budget
	done := waitForStatus(t, pool.GetQueue(), orphan.ID, JobStatusCompleted)
	assert.Equal(t, 1, done.Attempts)
}

func TestWorkerPool_PacerLimitsAggregateRate(t *testing.T) {
	executor := &scriptedExecutor{}
	// One token up front, then roughly one provider call per 100 seconds
	cfg := config.WorkerConfig{Workers: 4, ProviderCallsPerMin: 0.6, ProviderCallBurst: 1}
	pool := testPool(t, cfg, executor)
	pool.Start()

	first := mustJob(t)
	require.NoError(t, pool.GetQueue().Enqueue(first))
	second := mustJob(t)
	second.CreatedAt = second.CreatedAt.Add(time.Second)
	require.NoError(t, pool.GetQueue().Enqueue(second))

	waitForStatus(t, pool.GetQueue(), first.ID, JobStatusCompleted)

	// The second job waits for the bucket to refill and never reaches
	// the executor
	time.Sleep(200 * time.Millisecond)
	still, err := pool.GetQueue().GetJob(second.ID)
	require.NoError(t, err)
	assert.False(t, still.Status.Terminal())
	assert.Equal(t, 1, executor.Calls())
}

func TestWorkerPool_MaintenanceRunsCachePruner(t *testing.T) {
	executor := &scriptedExecutor{}
	pool := testPool(t, config.WorkerConfig{Workers: 1}, executor)
	pool.maintenanceEvery = 10 * time.Millisecond

	pruner := &countingPruner{}
	pool.SetPruner(pruner)
	pool.Start()

	require.Eventually(t, func() bool {
		return pruner.Calls() > 0
	}, 5*time.Second, 10*time.Millisecond, "maintenance never pruned the cache")
}

func TestWorkerPool_StopAndRestart(t *testing.T) {
	executor := &scriptedExecutor{}
	pool := testPool(t, config.WorkerConfig{Workers: 1}, executor)

	pool.Start()
	pool.Stop()

	job := mustJob(t)
	require.NoError(t, pool.GetQueue().Enqueue(job))

	// Restart gets a fresh context and picks up the queued job
	pool.Start()
	waitForStatus(t, pool.GetQueue(), job.ID, JobStatusCompleted)
}

func TestWorkerPool_Defaults(t *testing.T) {
	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer database.Close()

	pool := NewWorkerPool(database, config.WorkerConfig{}, &scriptedExecutor{}, nil)
	assert.Equal(t, 1, pool.Workers())
	assert.Equal(t, 5*time.Second, pool.pollInterval)
	assert.Nil(t, pool.pacer)
}

type stubProviderClient struct{}

func (c *stubProviderClient) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	return &provider.Response{
		Text:  "Acme is a solid CRM.",
		Model: "test-model",
		Usage: provider.TokenUsage{PromptTokens: 5, CompletionTokens: 10, TotalTokens: 15},
	}, nil
}

func (c *stubProviderClient) Type() provider.Type { return provider.TypeOpenAI }
func (c *stubProviderClient) IsConfigured() bool  { return true }

func TestRunnerExecutor_RunsAllActiveQueries(t *testing.T) {
	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer database.Close()

	store := monitor.NewStore(database)
	tenants := tenant.NewStore(database)
	limiter := ratelimit.NewLimiter(ratelimit.NewSQLStore(database), ratelimit.TierSet{
		Trial:  []ratelimit.Tier{{Window: time.Minute, Max: 100}},
		Paid:   []ratelimit.Tier{{Window: time.Minute, Max: 100}},
		Global: []ratelimit.Tier{{Window: time.Minute, Max: 1000}},
	}, nil)
	resultCache := cache.New(database, time.Hour, nil)
	dispatcher := provider.NewDispatcherWithClients(provider.TypeOpenAI, map[provider.Type]provider.Client{
		provider.TypeOpenAI: &stubProviderClient{},
	})
	runner := monitor.NewRunner(store, tenants, limiter, resultCache, dispatcher, mention.NewScorer(nil, nil), nil)

	ctx := context.Background()
	require.NoError(t, tenants.Create(ctx, &tenant.Tenant{
		ID: "t1", Name: "Test Tenant", Plan: tenant.PlanTrial, MonthlyQueryQuota: 100,
	}))
	require.NoError(t, store.CreateProject(ctx, &monitor.Project{ID: "p1", TenantID: "t1", BrandName: "Acme"}))
	require.NoError(t, store.CreateQuery(ctx, &monitor.TrackedQuery{ID: "q1", ProjectID: "p1", QueryText: "What is the best CRM?", Active: true}))
	require.NoError(t, store.CreateQuery(ctx, &monitor.TrackedQuery{ID: "q2", ProjectID: "p1", QueryText: "Which CRM has the best analytics?", Active: true}))
	require.NoError(t, store.CreateQuery(ctx, &monitor.TrackedQuery{ID: "q3", ProjectID: "p1", QueryText: "Old question", Active: false}))

	executor := NewRunnerExecutor(runner, store)

	// An empty query set resolves to the project's active queries
	job, err := NewJob("t1", "p1", nil, nil)
	require.NoError(t, err)
	job.MaxAttempts = DefaultMaxAttempts

	var last Progress
	ids, err := executor.Execute(ctx, job, func(current, total int, executionIDs []string) {
		last = Progress{Current: current, Total: total}
	})
	require.NoError(t, err)
	assert.Len(t, ids, 2, "inactive queries are skipped")
	assert.Equal(t, Progress{Current: 2, Total: 2}, last)

	execs, err := store.ListExecutions(ctx, "p1", 50, 0)
	require.NoError(t, err)
	require.Len(t, execs, 2)
}
