// Package core provides the HTTP chassis for the sensorpulse API. It builds a
// chi router and enforces the cross-cutting concerns (panic recovery, request
// IDs, logging, timeouts, error envelopes) before requests reach the handlers
// in api/handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sensorpulse/internal/config"
)

// RouteRegistrar mounts handler routes onto a router group.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the HTTP API, allowing for easy
// injection during testing.
type Server struct {
	Config    config.ServerConfig
	Build     config.BuildInfo
	Logger    *slog.Logger
	Validator *Validator

	HealthProbes []HealthProbe

	// ShutdownHooks run when Serve's context is cancelled, before in-flight
	// requests are drained. Request contexts stay live while they run so
	// streaming handlers can write a final event.
	ShutdownHooks []func(context.Context) error

	// V1RouteRegistrars mount request/response endpoints under /v1; they run
	// with the request timeout. StreamRegistrars mount long-lived streaming
	// endpoints under /v1 without it.
	V1RouteRegistrars []RouteRegistrar
	StreamRegistrars  []RouteRegistrar

	// Internal router
	router *chi.Mux
}

// NewServer initializes the server. The caller registers handlers and then
// calls MountRoutes.
func NewServer(cfg config.ServerConfig, build config.BuildInfo, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	return &Server{
		Config:    cfg,
		Build:     build,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Serve accepts connections on ln until ctx is cancelled, then drains
// in-flight requests for at most Config.ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Logger.Info("server shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Config.ShutdownTimeout)
	defer cancel()

	if len(s.ShutdownHooks) == 0 {
		cancelBase()
	}
	for _, hook := range s.ShutdownHooks {
		if err := hook(shutdownCtx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		cancelBase()
		_ = srv.Close()
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.Logger.Info("server shutdown complete")
	return nil
}

// ListenAndServe listens on Config.Port and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.Config.Port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", s.Config.Port, err)
	}
	return s.Serve(ctx, ln)
}
