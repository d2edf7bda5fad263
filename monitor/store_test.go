package monitor

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/brandlens/db"
	"github.com/brandlens/brandlens/errors"
	"github.com/brandlens/brandlens/mention"
	"github.com/brandlens/brandlens/tenant"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	require.NoError(t, tenant.NewStore(database).Create(ctx, &tenant.Tenant{
		ID: "t1", Name: "Tenant", Plan: tenant.PlanTrial,
	}))

	store := NewStore(database)
	require.NoError(t, store.CreateProject(ctx, &Project{ID: "p1", TenantID: "t1", BrandName: "Acme"}))
	return store
}

func TestStore_TrackedNames(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	names, err := store.TrackedNames(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme"}, names, "brand name alone before competitors exist")

	require.NoError(t, store.AddCompetitor(ctx, &Competitor{ProjectID: "p1", Name: "Globex"}))
	require.NoError(t, store.AddCompetitor(ctx, &Competitor{ProjectID: "p1", Name: "Initech"}))

	names, err = store.TrackedNames(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "Globex", "Initech"}, names)

	_, err = store.TrackedNames(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestStore_ExecutionLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	exec := &Execution{ProjectID: "p1", QueryText: "best CRM", Provider: "openai"}
	require.NoError(t, store.CreateExecution(ctx, exec))
	require.NotEmpty(t, exec.ID)
	assert.Equal(t, StatusRunning, exec.Status)

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)

	exec.ResponseText = "Acme wins."
	exec.MentionCount = 1
	exec.PromptTokens = 5
	exec.CompletionTokens = 3
	require.NoError(t, store.CompleteExecution(ctx, exec))

	got, err = store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "Acme wins.", got.ResponseText)
	assert.NotNil(t, got.CompletedAt)
}

func TestStore_FailExecution(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	exec := &Execution{ProjectID: "p1", QueryText: "q", Provider: "openai"}
	require.NoError(t, store.CreateExecution(ctx, exec))
	require.NoError(t, store.FailExecution(ctx, exec.ID, "provider timeout"))

	got, err := store.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "provider timeout", got.Error)
}

func TestStore_ListExecutionsNewestFirstAndCapped(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, store.CreateExecution(ctx, &Execution{
			ProjectID: "p1",
			QueryText: fmt.Sprintf("query %d", i),
			Provider:  "openai",
		}))
	}

	execs, err := store.ListExecutions(ctx, "p1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, execs, MaxExecutionPageSize)
	assert.Equal(t, "query 59", execs[0].QueryText, "newest first")

	execs, err = store.ListExecutions(ctx, "p1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, execs, 10)

	execs, err = store.ListExecutions(ctx, "p1", 500, 0)
	require.NoError(t, err)
	assert.Len(t, execs, MaxExecutionPageSize, "requested page size is clamped")

	// Offset pages past the newest rows
	execs, err = store.ListExecutions(ctx, "p1", 10, 55)
	require.NoError(t, err)
	assert.Len(t, execs, 5)
	assert.Equal(t, "query 4", execs[0].QueryText)
	assert.Equal(t, "query 0", execs[4].QueryText, "oldest row is reachable")

	// A negative offset reads from the top
	execs, err = store.ListExecutions(ctx, "p1", 1, -3)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "query 59", execs[0].QueryText)
}

func TestStore_MentionsRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	exec := &Execution{ProjectID: "p1", QueryText: "q", Provider: "openai"}
	require.NoError(t, store.CreateExecution(ctx, exec))

	mentions := []*BrandMention{
		{
			ExecutionID: exec.ID, ProjectID: "p1", Provider: "openai",
			MatchedName: "Acme", Type: mention.TypeCompetitive,
			Context:     "Acme beats Globex.",
			Competitors: []string{"Globex"}, Features: []string{"analytics"},
			Position: 0, SentimentLabel: mention.LabelPositive, SentimentScore: 0.8,
		},
		{
			ExecutionID: exec.ID, ProjectID: "p1", Provider: "openai",
			MatchedName: "Globex", Type: mention.TypeCompetitive,
			Context:  "Acme beats Globex.",
			Position: 1, SentimentLabel: mention.LabelNeutral, SentimentScore: 0,
		},
	}
	require.NoError(t, store.CreateMentions(ctx, mentions))

	got, err := store.ListMentions(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Acme", got[0].MatchedName)
	assert.Equal(t, []string{"Globex"}, got[0].Competitors)
	assert.Equal(t, []string{"analytics"}, got[0].Features)
	assert.Nil(t, got[1].Competitors)
	assert.Equal(t, 0.8, got[0].SentimentScore)
}

func TestStore_MentionScoreRangeValidated(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	exec := &Execution{ProjectID: "p1", QueryText: "q", Provider: "openai"}
	require.NoError(t, store.CreateExecution(ctx, exec))

	err := store.CreateMentions(ctx, []*BrandMention{{
		ExecutionID: exec.ID, ProjectID: "p1", MatchedName: "Acme",
		Type: mention.TypeDirect, SentimentLabel: mention.LabelPositive, SentimentScore: 1.5,
	}})
	require.Error(t, err, "out-of-range scores are rejected before insert")
}
