package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sensorpulse/internal/broadcast"
	"sensorpulse/internal/core"
	"sensorpulse/internal/types"
)

// DefaultHeartbeat is the interval between SSE keep-alive comments.
const DefaultHeartbeat = 15 * time.Second

// StreamSource is the engine surface used by StreamHandler.
type StreamSource interface {
	SubscribePredictions() (*broadcast.Subscription[types.Prediction], error)
	SubscribeInsights() (*broadcast.Subscription[types.Insight], error)
}

// StreamHandler relays broadcast records to HTTP clients as server-sent
// events. Routes must be mounted without the request timeout.
type StreamHandler struct {
	source    StreamSource
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewStreamHandler creates a StreamHandler. A heartbeat of zero uses
// DefaultHeartbeat.
func NewStreamHandler(source StreamSource, heartbeat time.Duration, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &StreamHandler{source: source, heartbeat: heartbeat, logger: logger}
}

// RegisterRoutes mounts the two stream endpoints.
func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/predictions/stream", h.HandlePredictions)
	r.Get("/insights/stream", h.HandleInsights)
}

// HandlePredictions handles GET /v1/predictions/stream.
func (h *StreamHandler) HandlePredictions(w http.ResponseWriter, r *http.Request) {
	sub, err := h.source.SubscribePredictions()
	if err != nil {
		core.Error(w, r, err)
		return
	}
	defer sub.Cancel()
	serveSSE(h, w, r, "prediction", sub.C)
}

// HandleInsights handles GET /v1/insights/stream.
func (h *StreamHandler) HandleInsights(w http.ResponseWriter, r *http.Request) {
	sub, err := h.source.SubscribeInsights()
	if err != nil {
		core.Error(w, r, err)
		return
	}
	defer sub.Cancel()
	serveSSE(h, w, r, "insight", sub.C)
}

// serveSSE writes each value from ch as an SSE event until the client goes
// away or ch is closed by engine shutdown.
func serveSSE[T any](h *StreamHandler, w http.ResponseWriter, r *http.Request, event string, ch <-chan T) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("stream does not support flushing", "error", err)
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	requestID := types.GetRequestID(r.Context())
	h.logger.Info("stream opened", "event", event, "request_id", requestID)
	defer h.logger.Info("stream closed", "event", event, "request_id", requestID)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case v, ok := <-ch:
			if !ok {
				_, _ = fmt.Fprint(w, "event: close\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			data, err := json.Marshal(v)
			if err != nil {
				h.logger.Error("failed to encode stream record", "event", event, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
