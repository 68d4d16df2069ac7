// Package server exposes the webhook pipeline over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"dealfx/internal/config"
	"dealfx/internal/metrics"
	"dealfx/internal/service"
	"dealfx/internal/storage"
	"dealfx/internal/webhook"
)

// Converter narrows the orchestrator surface the webhook handler needs.
type Converter interface {
	Handle(ctx context.Context, event service.Event) (service.Outcome, error)
}

// Dependencies aggregate the collaborators the server routes to.
type Dependencies struct {
	Auth       *webhook.Authenticator
	Conversion Converter
	Health     storage.HealthChecker
}

// Server is the HTTP boundary of the conversion pipeline.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, deps Dependencies, logger zerolog.Logger) *Server {
	serverLogger := logger.With().Str("component", "http_server").Logger()

	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/crm/deal", handleDeal(deps.Auth, deps.Conversion, serverLogger))
	mux.HandleFunc("/health/db", handleDBHealth(deps.Health, serverLogger))
	mux.HandleFunc("/healthz", handleLiveness())
	mux.Handle("/metrics", metrics.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      withRequestContext(mux, serverLogger),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: serverLogger,
	}
}

// ListenAndServe blocks serving requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
