// Package api exposes the analysis engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mrh-2003/aml-system/internal/domain"
	"github.com/mrh-2003/aml-system/internal/ingest"
	"github.com/mrh-2003/aml-system/internal/report"
	"github.com/mrh-2003/aml-system/internal/rules"
	"github.com/mrh-2003/aml-system/internal/scope"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, scopeSvc *scope.Service, reports *report.Service, loader *ingest.Loader, engine *rules.Engine, detection domain.DetectionConfig, version string) *Server {
	handler := NewHandler(repo, cache, bus, scopeSvc, reports, loader, engine, detection, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// Bulk loads
	router.Post("/loads", handler.CreateLoad)
	router.Get("/loads", handler.ListLoads)

	// Client discovery for case assembly
	router.Get("/clients", handler.ListClients)

	// Cases
	router.Post("/cases", handler.CreateCase)
	router.Get("/cases", handler.ListCases)
	router.Route("/cases/{id}", func(r chi.Router) {
		r.Get("/", handler.GetCase)
		r.Delete("/", handler.DeleteCase)
		r.Post("/members", handler.AddCaseMembers)
		r.Get("/members", handler.ListCaseMembers)

		// Detector runs and ad-hoc screening
		r.Post("/analyses/{detector}", handler.RunAnalysis)
		r.Post("/screen", handler.Screen)

		// Report marks and the executive PDF
		r.Post("/report-marks", handler.MarkReport)
		r.Get("/report-marks", handler.ListReportMarks)
		r.Post("/report", handler.GenerateReport)
	})

	// Screening rules
	router.Get("/rules", handler.ListRules)
	router.Post("/rules", handler.CreateRule)

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
