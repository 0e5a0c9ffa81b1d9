// Package http exposes the management API: record inspection, manual
// sync and cleanup triggers, provider status, and Prometheus metrics.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trafego/trafegodns/reconcile"
	"trafego/trafegodns/router"
	"trafego/trafegodns/tracker"
)

// ServerConfig holds the configuration for the HTTP management server.
type ServerConfig struct {
	Listen    string
	AuthToken string // Bearer token; empty disables auth.
}

// Server is the HTTP management API server.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
}

// NewServer creates a management server wired to the reconciliation
// engine, the ownership tracker, and the provider router.
func NewServer(cfg ServerConfig, eng *reconcile.Engine, cleaner *reconcile.Cleaner, tr *tracker.Tracker, rt *router.Router) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggingMiddleware())

	h := NewAPIHandler(eng, cleaner, tr, rt)

	// Public endpoints (no auth).
	engine.GET("/health", h.Health)
	engine.GET("/status", h.Status)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Authenticated management endpoints.
	api := engine.Group("/api")
	api.Use(AuthMiddleware(cfg.AuthToken))
	{
		api.GET("/records", h.ListRecords)
		api.GET("/providers", h.ListProviders)
		api.POST("/sync", h.Sync)
		api.POST("/cleanup", h.Cleanup)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.Listen,
			Handler: engine,
		},
		engine: engine,
	}
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	slog.Info("HTTP management server starting", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server with a 5-second deadline.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
}

// Engine returns the underlying Gin engine (useful for testing).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
