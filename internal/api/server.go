// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/project-reconciler/internal/logging"
	"github.com/project-reconciler/internal/models"
	"github.com/project-reconciler/internal/service"
	"github.com/project-reconciler/internal/types"
)

// ProjectService is the reconciliation store as the API uses it.
// *service.ReconciliationService implements it.
type ProjectService interface {
	UpsertWithResult(ctx context.Context, payload types.Document, sourceID string) (*service.UpsertResult, error)
	BulkUpsert(ctx context.Context, payloads []types.Document, sourceID string) *service.BulkResult
	Preview(ctx context.Context, payload types.Document, sourceID string) (*service.PreviewResult, error)

	GetByUID(ctx context.Context, uid string) (*models.Project, error)
	GetByName(ctx context.Context, name string) (*models.Project, error)
	GetBySource(ctx context.Context, sourceID string) ([]*models.Project, error)
	GetByCategory(ctx context.Context, tag string) ([]*models.Project, error)
	Stats(ctx context.Context) (*models.StoreStats, error)
	DuplicatesByTicker(ctx context.Context, excludeFields []string) ([]service.DuplicateGroup, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	projects   ProjectService
	checks     map[string]HealthCheck
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	IngestRPS       int // Ingest requests per second per source; 0 disables the limit
	IngestBurst     int
	MaxBodyBytes    int64
}

// DefaultServerConfig returns a configuration with the usual timeouts.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:            "0.0.0.0",
		Port:            "8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    16 << 20,
	}
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, projects ProjectService) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		projects: projects,
		checks:   make(map[string]HealthCheck),
		config:   config,
	}

	s.setupRouter()

	return s
}

// AddHealthCheck registers a dependency checked by /health.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// order matters: recovery must see panics raised by everything after it
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Ingest endpoints, rate limited per source
	limit := RateLimitMiddleware(NewRateLimiter(s.config.IngestRPS, s.config.IngestBurst))
	api.Handle("/sources/{source}/projects", limit(http.HandlerFunc(s.handleUpsertProject))).Methods("POST")
	api.Handle("/sources/{source}/projects:bulk", limit(http.HandlerFunc(s.handleBulkUpsert))).Methods("POST")
	api.Handle("/sources/{source}/projects:preview", limit(http.HandlerFunc(s.handlePreview))).Methods("POST")

	// Read endpoints
	api.HandleFunc("/sources/{source}/projects", s.handleListBySource).Methods("GET")
	api.HandleFunc("/projects", s.handleGetByName).Methods("GET")
	api.HandleFunc("/projects/{uid}", s.handleGetProject).Methods("GET")
	api.HandleFunc("/categories/{tag}/projects", s.handleListByCategory).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/reports/duplicates", s.handleDuplicates).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := s.checks[name](ctx)
		cancel()
		if err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]interface{}{
		"status":  "healthy",
		"service": "project-reconciler",
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	respondJSON(w, status, body)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
