package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brandlens/brandlens/errors"
	"github.com/brandlens/brandlens/monitor"
	"github.com/brandlens/brandlens/queue"
)

// ExecuteRequest is the body of POST /api/execute. Exactly one of
// QueryID or CustomQuery must be set.
type ExecuteRequest struct {
	ProjectID   string `json:"project_id"`
	QueryID     string `json:"query_id,omitempty"`
	CustomQuery string `json:"custom_query,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// HandleExecute runs one query synchronously and returns the execution
// with its mentions and summary
func (s *Server) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req ExecuteRequest
	if readJSON(w, r, &req) != nil {
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	result, err := s.runner.Run(r.Context(), monitor.RunRequest{
		TenantID:    orgID(r),
		ProjectID:   req.ProjectID,
		QueryID:     req.QueryID,
		CustomQuery: req.CustomQuery,
		Provider:    req.Provider,
	})
	if result != nil {
		setRateLimitHeaders(w, result.RateLimit)
	}
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Errorw("Execute failed", "project_id", req.ProjectID, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleListExecutions returns a project's recent executions, newest first
func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	projectID := r.URL.Query().Get("project")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "project query parameter is required")
		return
	}

	// Tenant isolation: a foreign project does not exist
	project, err := s.store.GetProject(r.Context(), projectID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if project.TenantID != orgID(r) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	limit := monitor.MaxExecutionPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	executions, err := s.store.ListExecutions(r.Context(), projectID, limit, offset)
	if err != nil {
		s.logger.Errorw("Failed to list executions", "project_id", projectID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"executions": executions,
		"count":      len(executions),
		"offset":     offset,
	})
}

// JobRequest is the body of POST /api/jobs. QueryIDs may be omitted to
// run all of the project's active queries; Providers may be omitted for
// the default provider.
type JobRequest struct {
	ProjectID string   `json:"project_id"`
	QueryIDs  []string `json:"query_ids,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

// HandleJobs submits a monitoring job (POST) or lists recent jobs (GET)
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if readJSON(w, r, &req) != nil {
		return
	}

	job, err := queue.NewJob(orgID(r), req.ProjectID, req.QueryIDs, req.Providers)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	// The project must exist and belong to the caller before work is queued
	project, err := s.store.GetProject(r.Context(), req.ProjectID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if project.TenantID != orgID(r) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}

	// Named queries must belong to the project
	for _, queryID := range req.QueryIDs {
		q, err := s.store.GetQuery(r.Context(), queryID)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		if q.ProjectID != req.ProjectID {
			writeError(w, http.StatusNotFound, "query "+queryID+" not found")
			return
		}
	}

	if err := s.jobs.Enqueue(job); err != nil {
		s.logger.Errorw("Failed to enqueue job", "project_id", req.ProjectID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statusFilter *queue.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		if !queue.IsValidStatus(raw) {
			writeError(w, http.StatusBadRequest, "unknown job status: "+raw)
			return
		}
		status := queue.JobStatus(raw)
		statusFilter = &status
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	jobs, err := s.jobs.ListJobs(statusFilter, limit)
	if err != nil {
		s.logger.Errorw("Failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Callers only see their own tenant's jobs
	tenantJobs := make([]*queue.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.TenantID == orgID(r) {
			tenantJobs = append(tenantJobs, job)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  tenantJobs,
		"count": len(tenantJobs),
	})
}

// HandleJob returns (GET) or cancels (DELETE) a single job by id
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	job, err := s.jobs.GetJob(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if job.TenantID != orgID(r) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, job)
	case http.MethodDelete:
		if err := s.jobs.CancelJob(id, "cancelled by caller"); err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		cancelled, err := s.jobs.GetJob(id)
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, cancelled)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleHealth reports liveness
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := s.jobs.GetStats()
	if err != nil {
		s.logger.Warnw("Health check could not read queue stats", "error", err)
		writeError(w, http.StatusServiceUnavailable, errors.Wrap(err, "queue unavailable").Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"queue":  stats,
	})
}
