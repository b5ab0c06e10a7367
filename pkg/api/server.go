// Package api exposes the agent execution subsystem over HTTP: agent
// listing, execution submission and history, preferences, health, and
// the same-origin forwarding proxy in front of the workflow engine.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmarceau/agentrunner/pkg/agent"
	"github.com/dmarceau/agentrunner/pkg/config"
	"github.com/dmarceau/agentrunner/pkg/execution"
	"github.com/dmarceau/agentrunner/pkg/health"
	"github.com/dmarceau/agentrunner/pkg/logging"
	"github.com/dmarceau/agentrunner/pkg/middleware"
	"github.com/dmarceau/agentrunner/pkg/state"
	"github.com/dmarceau/agentrunner/pkg/storage"
)

// Executor runs agent executions end to end
type Executor interface {
	ExecuteAgent(ctx context.Context, agentID string, input execution.Input) (*execution.Execution, error)
}

// EngineHealth reports the engine's last observed availability
type EngineHealth interface {
	Status() health.Status
}

// Forwarder relays arbitrary requests to the engine's webhook endpoint
type Forwarder interface {
	Forward(ctx context.Context, method string, path string, body io.Reader, header http.Header) (*http.Response, error)
}

// Dependencies collects everything the server serves from
type Dependencies struct {
	// Registry answers agent listing and lookup
	Registry agent.Registry

	// Executor runs submissions
	Executor Executor

	// Container holds execution history
	Container *state.Container

	// Store persists preferences and backs export/import
	Store *storage.HistoryStore

	// Health reports engine availability
	Health EngineHealth

	// Engine forwards proxy requests
	Engine Forwarder

	// Logger records request handling; defaults to a no-op logger
	Logger logging.Logger
}

// Server represents the HTTP API server
type Server struct {
	config *config.Config
	router *mux.Router
	server *http.Server
	deps   Dependencies
	logger logging.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	s := &Server{
		config: cfg,
		router: mux.NewRouter(),
		deps:   deps,
		logger: deps.Logger,
	}

	s.setupRoutes()
	return s
}

// Handler returns the server's root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	// No write timeout: a submission may legitimately hold its connection
	// open while the orchestrator polls the engine for minutes.
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", logging.F("addr", addr))

	err := s.server.ListenAndServe()

	// If the server was shut down gracefully, this error is expected
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// API router with version prefix
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)

	// Agent routes
	agents := api.PathPrefix("/agents").Subrouter()
	agents.HandleFunc("", s.handleListAgents).Methods(http.MethodGet, http.MethodOptions)
	agents.HandleFunc("/{agentId}", s.handleGetAgent).Methods(http.MethodGet, http.MethodOptions)
	agents.HandleFunc("/{agentId}/executions", s.handleExecuteAgent).Methods(http.MethodPost, http.MethodOptions)
	agents.HandleFunc("/{agentId}/executions", s.handleAgentHistory).Methods(http.MethodGet)
	agents.HandleFunc("/{agentId}/executions", s.handleClearHistory).Methods(http.MethodDelete)

	// Execution lookup across agents
	api.HandleFunc("/executions/{id}", s.handleGetExecution).Methods(http.MethodGet, http.MethodOptions)

	// History transfer
	api.HandleFunc("/history/export", s.handleExportHistory).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/history/import", s.handleImportHistory).Methods(http.MethodPost, http.MethodOptions)

	// Preferences
	api.HandleFunc("/preferences", s.handleGetPreferences).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/preferences", s.handlePutPreferences).Methods(http.MethodPut)

	// Forwarding proxy used by browser clients; accepts any method
	s.router.PathPrefix(proxyPathPrefix).HandlerFunc(s.handleProxy)

	// Prometheus metrics
	if s.config.Metrics.Enabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	// Request logging runs outermost, then CORS so denied requests still
	// carry CORS headers, then the API key check
	apiKey := middleware.NewAPIKeyMiddleware(s.config.Server.APIKey, proxyPathPrefix, "/metrics")
	s.router.Use(middleware.RequestLogging(s.logger))
	s.router.Use(middleware.CORS(s.config.Server.CORSOrigins))
	s.router.Use(apiKey.Authenticate)
}

// handleHealth reports service and engine availability
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	engine := s.deps.Health.Status()

	status := http.StatusOK
	label := "ok"
	if !engine.Available {
		status = http.StatusServiceUnavailable
		label = "degraded"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": label,
		"engine": engine,
	})
}
