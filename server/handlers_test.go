package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandlens/brandlens/cache"
	"github.com/brandlens/brandlens/config"
	"github.com/brandlens/brandlens/db"
	"github.com/brandlens/brandlens/mention"
	"github.com/brandlens/brandlens/monitor"
	"github.com/brandlens/brandlens/provider"
	"github.com/brandlens/brandlens/queue"
	"github.com/brandlens/brandlens/ratelimit"
	"github.com/brandlens/brandlens/tenant"
)

type stubClient struct {
	text string
}

func (c *stubClient) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	return &provider.Response{
		Text:  c.text,
		Model: "test-model",
		Usage: provider.TokenUsage{PromptTokens: 5, CompletionTokens: 10, TotalTokens: 15},
	}, nil
}

func (c *stubClient) Type() provider.Type { return provider.TypeOpenAI }
func (c *stubClient) IsConfigured() bool  { return true }

type serverFixture struct {
	srv     *Server
	ts      *httptest.Server
	store   *monitor.Store
	tenants *tenant.Store
	jobs    *queue.Queue
}

// newServerFixture builds the full API over a temp database with one
// trial tenant "t1" owning project "p1" (brand Acme, competitor Globex,
// tracked query "q1")
func newServerFixture(t *testing.T, quota, trialMax int) *serverFixture {
	t.Helper()

	database, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store := monitor.NewStore(database)
	tenants := tenant.NewStore(database)
	limiter := ratelimit.NewLimiter(ratelimit.NewSQLStore(database), ratelimit.TierSet{
		Trial:  []ratelimit.Tier{{Window: time.Minute, Max: trialMax}},
		Paid:   []ratelimit.Tier{{Window: time.Minute, Max: 100}},
		Global: []ratelimit.Tier{{Window: time.Minute, Max: 1000}},
	}, nil)
	resultCache := cache.New(database, 6*time.Hour, nil)
	dispatcher := provider.NewDispatcherWithClients(provider.TypeOpenAI, map[provider.Type]provider.Client{
		provider.TypeOpenAI: &stubClient{text: "Acme is a solid CRM with strong analytics."},
	})
	runner := monitor.NewRunner(store, tenants, limiter, resultCache, dispatcher, mention.NewScorer(nil, nil), nil)
	jobs := queue.NewQueue(database)

	ctx := context.Background()
	require.NoError(t, tenants.Create(ctx, &tenant.Tenant{
		ID: "t1", Name: "Test Tenant", Plan: tenant.PlanTrial, MonthlyQueryQuota: quota,
	}))
	require.NoError(t, store.CreateProject(ctx, &monitor.Project{ID: "p1", TenantID: "t1", BrandName: "Acme"}))
	require.NoError(t, store.AddCompetitor(ctx, &monitor.Competitor{ProjectID: "p1", Name: "Globex"}))
	require.NoError(t, store.CreateQuery(ctx, &monitor.TrackedQuery{
		ID: "q1", ProjectID: "p1", QueryText: "What is the best CRM?", Active: true,
	}))

	srv := NewServer(runner, store, jobs, config.ServerConfig{AllowedOrigins: []string{"*"}}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &serverFixture{srv: srv, ts: ts, store: store, tenants: tenants, jobs: jobs}
}

func (f *serverFixture) request(t *testing.T, method, path, org string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.ts.URL+path, &buf)
	require.NoError(t, err)
	if org != "" {
		req.Header.Set("X-Org-ID", org)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_MissingIdentity(t *testing.T) {
	f := newServerFixture(t, 25, 100)

	resp := f.request(t, http.MethodPost, "/api/execute", "", ExecuteRequest{ProjectID: "p1", CustomQuery: "q"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_Execute(t *testing.T) {
	f := newServerFixture(t, 25, 100)

	resp := f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{
		ProjectID:   "p1",
		CustomQuery: "What is the best CRM?",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Rate-limit state rides along on success
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))

	body := decodeBody(t, resp)
	execution := body["execution"].(map[string]interface{})
	assert.Equal(t, "completed", execution["status"])
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["total_mentions"])
	assert.Equal(t, false, body["cache_hit"])
}

func TestServer_ExecuteValidation(t *testing.T) {
	f := newServerFixture(t, 25, 100)

	// Missing project
	resp := f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{CustomQuery: "q"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Neither query_id nor custom_query
	resp = f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{ProjectID: "p1"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown project
	resp = f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{ProjectID: "nope", CustomQuery: "q"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Foreign tenant cannot see the project
	resp = f.request(t, http.MethodPost, "/api/execute", "t2", ExecuteRequest{ProjectID: "p1", CustomQuery: "q"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Unknown provider is a server-side configuration error
	resp = f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{ProjectID: "p1", CustomQuery: "q", Provider: "bedrock"})
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_ExecuteQuotaExceeded(t *testing.T) {
	f := newServerFixture(t, 1, 100)

	resp := f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{ProjectID: "p1", CustomQuery: "first"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{ProjectID: "p1", CustomQuery: "second"})
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body["error"], "quota")
}

func TestServer_ExecuteRateLimited(t *testing.T) {
	f := newServerFixture(t, 25, 1)

	resp := f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{ProjectID: "p1", CustomQuery: "first"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{ProjectID: "p1", CustomQuery: "second"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))
}

func TestServer_ListExecutions(t *testing.T) {
	f := newServerFixture(t, 25, 100)

	for _, q := range []string{"a", "b"} {
		resp := f.request(t, http.MethodPost, "/api/execute", "t1", ExecuteRequest{ProjectID: "p1", CustomQuery: q})
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := f.request(t, http.MethodGet, "/api/executions?project=p1", "t1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["count"])

	// Newest first, so offset 1 skips "b" and lands on "a"
	resp = f.request(t, http.MethodGet, "/api/executions?project=p1&limit=1&offset=1", "t1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(1), body["offset"])
	page := body["executions"].([]interface{})
	require.Len(t, page, 1)
	assert.Equal(t, "a", page[0].(map[string]interface{})["query_text"])

	// Malformed offset
	resp = f.request(t, http.MethodGet, "/api/executions?project=p1&offset=x", "t1", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Foreign tenant sees nothing
	resp = f.request(t, http.MethodGet, "/api/executions?project=p1", "t2", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Missing project parameter
	resp = f.request(t, http.MethodGet, "/api/executions", "t1", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_JobLifecycle(t *testing.T) {
	f := newServerFixture(t, 25, 100)

	resp := f.request(t, http.MethodPost, "/api/jobs", "t1", JobRequest{ProjectID: "p1", QueryIDs: []string{"q1"}})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody(t, resp)
	jobID := body["id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "queued", body["status"])

	// Pollable status
	resp = f.request(t, http.MethodGet, "/api/jobs/"+jobID, "t1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "queued", body["status"])

	// Foreign tenant cannot see the job
	resp = f.request(t, http.MethodGet, "/api/jobs/"+jobID, "t2", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Listing is tenant-scoped
	resp = f.request(t, http.MethodGet, "/api/jobs", "t1", nil)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])
	resp = f.request(t, http.MethodGet, "/api/jobs", "t2", nil)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(0), body["count"])

	// Cancel the queued job
	resp = f.request(t, http.MethodDelete, "/api/jobs/"+jobID, "t1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, "cancelled", body["status"])
}

func TestServer_SubmitJobValidation(t *testing.T) {
	f := newServerFixture(t, 25, 100)

	// Empty string inside the query set
	resp := f.request(t, http.MethodPost, "/api/jobs", "t1", JobRequest{ProjectID: "p1", QueryIDs: []string{""}})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown project
	resp = f.request(t, http.MethodPost, "/api/jobs", "t1", JobRequest{ProjectID: "nope"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Query that does not belong to the project
	resp = f.request(t, http.MethodPost, "/api/jobs", "t1", JobRequest{ProjectID: "p1", QueryIDs: []string{"nope"}})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Omitted query set is accepted and runs all active queries
	resp = f.request(t, http.MethodPost, "/api/jobs", "t1", JobRequest{ProjectID: "p1"})
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "queued", body["status"])

	resp = f.request(t, http.MethodGet, "/api/jobs/unknown-id", "t1", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	f := newServerFixture(t, 25, 100)

	resp, err := http.Get(f.ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_CORS(t *testing.T) {
	f := newServerFixture(t, 25, 100)

	req, err := http.NewRequest(http.MethodOptions, f.ts.URL+"/api/execute", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "X-Org-ID"))
	assert.True(t, strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "DELETE"))
}
