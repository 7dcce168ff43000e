package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mesh-gateway/meshgw/internal/auth"
	"github.com/mesh-gateway/meshgw/internal/config"
)

// Server is the HTTP API server.
type Server struct {
	sender         MessageSender
	device         DeviceInspector
	queue          QueueInspector
	scanner        PortScanner
	telemetry      TelemetryPort
	authMiddleware *auth.Middleware
	logger         *slog.Logger

	httpServer *http.Server
	startTime  time.Time
	cfg        config.ServerConfig

	// Version is reported by the health endpoint.
	Version string
}

// NewServer creates the API server. authMiddleware may be nil to disable
// authentication.
func NewServer(cfg config.ServerConfig, sender MessageSender, device DeviceInspector, queue QueueInspector, scanner PortScanner, telemetry TelemetryPort, authMiddleware *auth.Middleware, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		sender:         sender,
		device:         device,
		queue:          queue,
		scanner:        scanner,
		telemetry:      telemetry,
		authMiddleware: authMiddleware,
		logger:         logger,
		startTime:      time.Now(),
		cfg:            cfg,
		Version:        "dev",
	}
}

// Start serves until Stop is called or the listener fails.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}
