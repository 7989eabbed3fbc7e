package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the whole probe fan-out.
const healthCheckTimeout = 2 * time.Second

// HealthProbe defines the interface for a subsystem health check (engine,
// database).
type HealthProbe interface {
	// Name returns a human-readable identifier for the probe.
	Name() string

	// Check should respect the context deadline and return an error if the
	// subsystem is unhealthy or unreachable.
	Check(ctx context.Context) error
}

// ProbeFunc adapts a function to HealthProbe.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

// Name implements HealthProbe.
func (p ProbeFunc) Name() string { return p.ProbeName }

// Check implements HealthProbe.
func (p ProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

// componentStatus represents the health state of a single subsystem.
type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs every registered probe concurrently under a shared
// deadline. It answers 200 when all probes pass and 503 when any fails or
// does not finish in time.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	probes := s.HealthProbes
	if len(probes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy", Version: s.Build.Version})
		return
	}

	// Buffered slots let late probes exit after the handler has returned.
	results := make([]chan error, len(probes))
	for i, probe := range probes {
		results[i] = make(chan error, 1)
		go func(p HealthProbe, out chan<- error) {
			defer func() {
				if rvr := recover(); rvr != nil {
					out <- fmt.Errorf("probe panicked: %v", rvr)
				}
			}()
			out <- p.Check(ctx)
		}(probe, results[i])
	}

	resp := healthResponse{
		Status:     "healthy",
		Version:    s.Build.Version,
		Components: make(map[string]componentStatus, len(probes)),
	}
	for i, probe := range probes {
		status := componentStatus{Status: "healthy"}
		select {
		case err := <-results[i]:
			if err != nil {
				status = componentStatus{Status: "unhealthy", Message: err.Error()}
			}
		case <-ctx.Done():
			status = componentStatus{Status: "unhealthy", Message: "health check timed out"}
		}
		if status.Status != "healthy" {
			resp.Status = "unhealthy"
		}
		resp.Components[probe.Name()] = status
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
		s.Logger.Warn("health check failed", "components", resp.Components)
	}
	JSON(w, r, code, resp)
}
