package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sensorpulse/internal/types"
)

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultMaxBodyBytes    = 1 << 20 // 1 MB
)

// defaultRedactedHeaders lists header names whose values are masked in request
// logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes registers the global middleware chain, the /v1 groups and the
// top-level routes.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ContextTimeoutMiddleware(s.Config.RequestTimeout))
			for _, registrar := range s.V1RouteRegistrars {
				registrar(r)
			}
		})
		r.Group(func(r chi.Router) {
			for _, registrar := range s.StreamRegistrars {
				registrar(r)
			}
		})
	})

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/version", s.HandleVersion)
}

// registerGlobalMiddleware applies middleware in strict order:
//  1. Recoverer       - outermost, catches panics from everything below.
//  2. RequestID       - correlation ID for logs and error envelopes.
//  3. SecurityHeaders - present on every response, including errors.
//  4. RequestLogger   - structured access log with redacted headers.
//  5. BodyLimit       - caps request bodies at Config.MaxBodyBytes.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(BodyLimitMiddleware(s.Config.MaxBodyBytes))
}

// HandleVersion reports the build metadata.
func (s *Server) HandleVersion(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, s.Build)
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BodyLimitMiddleware wraps the request body in http.MaxBytesReader.
func BodyLimitMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware reuses the incoming X-Request-Id header or generates a
// new UUID, stores it in the context and echoes it in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
