package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sensorpulse/internal/core"
	"sensorpulse/internal/types"
)

// EngineReader is the read-only engine surface used by QueryHandler.
type EngineReader interface {
	Now() time.Time
	ActivePredictions(now time.Time) []types.Prediction
	LatestFeatures() []types.FeatureSummary
	History(kind types.SensorKind) []types.Point
}

// QueryHandler serves point-in-time views of engine state.
type QueryHandler struct {
	engine    EngineReader
	validator *core.Validator
	logger    *slog.Logger
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(engine EngineReader, val *core.Validator, logger *slog.Logger) *QueryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if val == nil {
		val = core.NewValidator(logger)
	}
	return &QueryHandler{engine: engine, validator: val, logger: logger}
}

// RegisterRoutes mounts the query endpoints.
func (h *QueryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/predictions/active", h.HandleActivePredictions)
	r.Get("/features", h.HandleFeatures)
	r.Get("/history/{kind}", h.HandleHistory)
}

type predictionFilter struct {
	Kind string `validate:"omitempty,prediction_kind"`
}

type featureFilter struct {
	Kind string `validate:"omitempty,sensor_kind"`
}

type historyFilter struct {
	Kind  string `validate:"required,sensor_kind"`
	Since time.Time
}

// HandleActivePredictions handles GET /v1/predictions/active with an
// optional ?kind= filter.
func (h *QueryHandler) HandleActivePredictions(w http.ResponseWriter, r *http.Request) {
	filter := predictionFilter{Kind: r.URL.Query().Get("kind")}
	if err := h.validator.ValidateStruct(filter); err != nil {
		core.Error(w, r, err)
		return
	}

	active := h.engine.ActivePredictions(h.engine.Now())
	out := make([]types.Prediction, 0, len(active))
	for _, p := range active {
		if filter.Kind == "" || p.Kind == types.PredictionKind(filter.Kind) {
			out = append(out, p)
		}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: out,
		Meta: map[string]any{"count": len(out)},
	})
}

// HandleFeatures handles GET /v1/features with an optional ?kind= filter.
// Kinds without enough data are absent from the result.
func (h *QueryHandler) HandleFeatures(w http.ResponseWriter, r *http.Request) {
	filter := featureFilter{Kind: r.URL.Query().Get("kind")}
	if err := h.validator.ValidateStruct(filter); err != nil {
		core.Error(w, r, err)
		return
	}

	summaries := h.engine.LatestFeatures()
	out := make([]types.FeatureSummary, 0, len(summaries))
	for _, s := range summaries {
		if filter.Kind == "" || s.Kind == types.SensorKind(filter.Kind) {
			out = append(out, s)
		}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: out,
		Meta: map[string]any{"count": len(out)},
	})
}

// HandleHistory handles GET /v1/history/{kind}?since=RFC3339 and returns the
// retained time series for one sensor kind.
func (h *QueryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	filter := historyFilter{Kind: chi.URLParam(r, "kind")}
	if err := h.validator.ValidateStruct(filter); err != nil {
		core.Error(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter,
				"since must be an RFC 3339 timestamp", err, map[string]any{"since": raw}))
			return
		}
		filter.Since = since
	}

	points := h.engine.History(types.SensorKind(filter.Kind))
	out := make([]types.Point, 0, len(points))
	for _, p := range points {
		if p.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, p)
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: out,
		Meta: map[string]any{"sensor_kind": filter.Kind, "count": len(out)},
	})
}
