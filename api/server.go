package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cognosis/app"
)

// Server exposes the experiment protocol over HTTP
type Server struct {
	router      *chi.Mux
	experiments *app.ExperimentService
	analysis    *app.AnalysisService
}

// Config holds HTTP server configuration
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer creates the HTTP server around the application services
func NewServer(experiments *app.ExperimentService, analysis *app.AnalysisService) (*Server, error) {
	if experiments == nil {
		return nil, fmt.Errorf("experiment service cannot be nil")
	}
	if analysis == nil {
		return nil, fmt.Errorf("analysis service cannot be nil")
	}

	s := &Server{
		router:      chi.NewRouter(),
		experiments: experiments,
		analysis:    analysis,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// setupMiddleware configures HTTP middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (s *Server) setupRoutes() {
	// Event-window protocol (single party, commit then reveal)
	s.router.Post("/api/events", s.handleCreateEventWindow)
	s.router.Post("/api/events/{id}/reveal", s.handleRevealEventWindow)
	s.router.Post("/api/events/{id}/score", s.handleScoreEventWindow)

	// Multi-party telepathy protocol
	s.router.Post("/api/sessions", s.handleCreateSession)
	s.router.Post("/api/sessions/{id}/join", s.handleJoinSession)
	s.router.Post("/api/sessions/{id}/target", s.handleLockTarget)
	s.router.Post("/api/sessions/{id}/tags", s.handleSubmitTags)
	s.router.Post("/api/sessions/{id}/poll", s.handlePoll)
	s.router.Post("/api/sessions/{id}/response", s.handleSubmitResponse)
	s.router.Post("/api/sessions/{id}/score", s.handleScoreSession)
	s.router.Post("/api/sessions/{id}/cancel", s.handleCancelSession)
	s.router.Get("/api/sessions/{id}", s.handleGetSession)

	// Batch analysis
	s.router.Get("/api/analysis", s.handleAnalysis)
	s.router.Get("/api/analysis/report", s.handleAnalysisReport)
	s.router.Post("/api/analysis/export", s.handleAnalysisExport)

	// Maintenance
	s.router.Post("/api/maintenance/sweep", s.handleSweepExpired)

	s.router.Get("/healthz", s.handleHealth)
}

// Handler returns the router for embedding in an http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it exits
func (s *Server) Start(cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	log.Printf("Starting Cognosis API server on %s", addr)
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
