// Package server exposes the BrandLens HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/brandlens/brandlens/config"
	"github.com/brandlens/brandlens/monitor"
	"github.com/brandlens/brandlens/queue"
)

// Server owns the HTTP API. All collaborators are injected; the server
// holds no global state and can be constructed multiple times in tests.
type Server struct {
	runner     *monitor.Runner
	store      *monitor.Store
	jobs       *queue.Queue
	cfg        config.ServerConfig
	logger     *zap.SugaredLogger
	mux        *http.ServeMux
	httpServer *http.Server
}

// NewServer wires the API over the given collaborators
func NewServer(runner *monitor.Runner, store *monitor.Store, jobs *queue.Queue, cfg config.ServerConfig, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		runner: runner,
		store:  store,
		jobs:   jobs,
		cfg:    cfg,
		logger: logger.Named("server"),
		mux:    http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP handlers
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))

	s.mux.HandleFunc("/api/execute", s.corsMiddleware(s.identityMiddleware(s.HandleExecute)))
	s.mux.HandleFunc("/api/executions", s.corsMiddleware(s.identityMiddleware(s.HandleListExecutions)))
	s.mux.HandleFunc("/api/jobs", s.corsMiddleware(s.identityMiddleware(s.HandleJobs)))
	s.mux.HandleFunc("/api/jobs/", s.corsMiddleware(s.identityMiddleware(s.HandleJob)))

	s.mux.HandleFunc("/ws/jobs", s.corsMiddleware(s.HandleJobsWebSocket))
}

// Handler returns the configured mux, useful for httptest servers
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Port returns the configured listen port, falling back to the default
func (s *Server) Port() int {
	if s.cfg.Port != nil {
		return *s.cfg.Port
	}
	return config.DefaultServerPort
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.Port())
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infow("HTTP server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Infow("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}
