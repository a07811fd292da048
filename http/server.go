// Package http serves the risk predictor, the heart-rate monitor and
// account routes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"heartify/auth"
	"heartify/config"
	"heartify/monitoring"
	"heartify/predictor"
)

// Deps are the services the handlers call into.
type Deps struct {
	Predictor *predictor.Predictor
	HeartRate *monitoring.HeartRateService
	Hub       *monitoring.WebSocketHub
	Tokens    *auth.TokenService
	Auth      config.AuthConfig
	Registry  *prometheus.Registry
	Logger    *zap.Logger
}

type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewHandler builds the routed and middleware-wrapped handler.
func NewHandler(cfg config.HTTPConfig, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	mux := http.NewServeMux()
	api := &API{deps: deps, logger: deps.Logger}
	api.Register(mux)

	chain := Chain(
		RecoveryMiddleware(deps.Logger),
		LoggerMiddleware(deps.Logger),
		MetricsMiddleware(deps.Registry, mux),
		SecurityHeadersMiddleware,
		CORSMiddleware(cfg.AllowedOrigins),
		RequestSizeMiddleware(cfg.MaxBodyBytes),
		TimeoutMiddleware(cfg.Timeout),
	)
	return chain(mux)
}

func NewServer(cfg config.HTTPConfig, addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(cfg, deps),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Timeout,
			WriteTimeout:      cfg.Timeout + 5*time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
