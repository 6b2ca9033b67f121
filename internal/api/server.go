// Package api exposes the service over HTTP. Handlers translate between the
// wire format and the service layer; all domain behavior lives below.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Runbook-Agent/change-intelligence/internal/logging"
	"github.com/Runbook-Agent/change-intelligence/internal/service"
)

// Server handles HTTP API requests and implements lifecycle.Component
type Server struct {
	port    int
	server  *http.Server
	router  *http.ServeMux
	service *service.Service
	logger  *logging.Logger
}

// NewServer creates the API server on the given port
func NewServer(port int, svc *service.Service) *Server {
	s := &Server{
		port:    port,
		router:  http.NewServeMux(),
		service: svc,
		logger:  logging.GetLogger("api"),
	}
	s.registerHandlers()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.corsMiddleware(s.router),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerHandlers() {
	s.router.HandleFunc("POST /api/v1/events", s.handleCreateEvent)
	s.router.HandleFunc("POST /api/v1/events/batch", s.handleBatchCreate)
	s.router.HandleFunc("GET /api/v1/events", s.handleQueryEvents)
	s.router.HandleFunc("GET /api/v1/events/search", s.handleSearchEvents)
	s.router.HandleFunc("GET /api/v1/events/{id}", s.handleGetEvent)
	s.router.HandleFunc("PATCH /api/v1/events/{id}", s.handleUpdateEvent)
	s.router.HandleFunc("DELETE /api/v1/events/{id}", s.handleDeleteEvent)

	s.router.HandleFunc("POST /api/v1/correlate", s.handleCorrelate)
	s.router.HandleFunc("POST /api/v1/blast-radius", s.handleBlastRadius)
	s.router.HandleFunc("GET /api/v1/velocity", s.handleVelocity)
	s.router.HandleFunc("POST /api/v1/triage", s.handleTriage)

	s.router.HandleFunc("POST /api/v1/graph/import", s.handleGraphImport)
	s.router.HandleFunc("GET /api/v1/graph/services", s.handleListServices)
	s.router.HandleFunc("GET /api/v1/graph/services/{id}/dependencies", s.handleDependencies)
	s.router.HandleFunc("GET /api/v1/graph/export", s.handleGraphExport)

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.Handle("GET /metrics", promhttp.Handler())
}

// corsMiddleware adds CORS headers to allow browser access
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start implements lifecycle.Component
func (s *Server) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.logger.Info("Starting API server on port %d", s.port)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error: %v", err)
		}
	}()
	return nil
}

// Stop implements lifecycle.Component
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Error shutting down API server: %v", err)
		return err
	}
	s.logger.Info("API server stopped")
	return nil
}

// Name implements lifecycle.Component
func (s *Server) Name() string {
	return "API Server"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Health(r.Context()))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
