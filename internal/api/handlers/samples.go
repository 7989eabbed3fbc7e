// Package handlers contains the HTTP handlers of the sensorpulse API. Each
// handler depends on a small locally defined view of the engine so tests can
// substitute fakes.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sensorpulse/internal/core"
	"sensorpulse/internal/ingest"
	"sensorpulse/internal/types"
)

// SampleIngester is the engine surface used by SampleHandler.
type SampleIngester interface {
	IngestEvents(ctx context.Context, events []ingest.RawEvent) ingest.BatchResult
}

// SampleHandler accepts raw device events over HTTP.
type SampleHandler struct {
	engine   SampleIngester
	maxBatch int
	logger   *slog.Logger
}

// NewSampleHandler creates a SampleHandler. maxBatch caps the number of
// events per request; zero or less disables the cap.
func NewSampleHandler(engine SampleIngester, maxBatch int, logger *slog.Logger) *SampleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleHandler{engine: engine, maxBatch: maxBatch, logger: logger}
}

// RegisterRoutes mounts POST /samples.
func (h *SampleHandler) RegisterRoutes(r chi.Router) {
	r.Post("/samples", h.HandleIngest)
}

type rejectionView struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ingestResponse struct {
	Accepted  int             `json:"accepted"`
	Anomalous int             `json:"anomalous"`
	Rejected  []rejectionView `json:"rejected"`
}

// HandleIngest handles POST /v1/samples. The body is one raw event or an
// array of them. Invalid events are reported per index and never fail the
// batch; the response is 202 unless the body itself is unusable or the
// engine has shut down.
func (h *SampleHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := core.ReadBody(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	events, err := ingest.DecodeEvents(body)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if h.maxBatch > 0 && len(events) > h.maxBatch {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationBatch,
			"too many events in one request", nil,
			map[string]any{"max_batch_size": h.maxBatch, "received": len(events)}))
		return
	}

	res := h.engine.IngestEvents(r.Context(), events)
	if res.Accepted == 0 && res.Anomalous == 0 && allClosed(res.Rejected) {
		core.Error(w, r, types.ErrEngineClosed)
		return
	}

	resp := ingestResponse{
		Accepted:  res.Accepted,
		Anomalous: res.Anomalous,
		Rejected:  make([]rejectionView, 0, len(res.Rejected)),
	}
	for _, rej := range res.Rejected {
		resp.Rejected = append(resp.Rejected, toRejectionView(rej))
	}
	if len(resp.Rejected) > 0 {
		h.logger.Debug("samples rejected",
			"rejected", len(resp.Rejected),
			"request_id", types.GetRequestID(r.Context()),
		)
	}
	core.JSON(w, r, http.StatusAccepted, core.APIResponse{Data: resp})
}

func toRejectionView(rej ingest.Rejection) rejectionView {
	view := rejectionView{Index: rej.Index, Code: string(types.ErrCodeInternalUnexpected), Message: "event could not be processed"}
	var appErr *types.AppError
	if errors.As(rej.Err, &appErr) {
		view.Code = string(appErr.Code)
		view.Message = appErr.Message
	}
	return view
}

func allClosed(rejected []ingest.Rejection) bool {
	if len(rejected) == 0 {
		return false
	}
	for _, rej := range rejected {
		if !types.IsCode(rej.Err, types.ErrCodeEngineClosed) {
			return false
		}
	}
	return true
}
