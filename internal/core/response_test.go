package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sensorpulse/internal/types"
)

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"kind": "light"}})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}
	var body APIResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	dataMap, ok := body.Data.(map[string]any)
	if !ok || dataMap["kind"] != "light" {
		t.Errorf("unexpected data %v", body.Data)
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, map[string]any{"ch": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), string(types.ErrCodeInternalUnexpected)) {
		t.Errorf("expected fallback error envelope, got %s", w.Body.String())
	}
}

func TestError_AppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"validation", types.NewAppError(types.ErrCodeInvalidSample, "bad sample", nil), http.StatusBadRequest, types.ErrCodeInvalidSample},
		{"clock anomaly", types.NewAppError(types.ErrCodeClockAnomaly, "too far ahead", nil), http.StatusUnprocessableEntity, types.ErrCodeClockAnomaly},
		{"engine closed", types.ErrEngineClosed, http.StatusServiceUnavailable, types.ErrCodeEngineClosed},
		{"wrapped", errors.Join(errors.New("ctx"), types.NewAppError(types.ErrCodeUpstreamLLM, "llm down", nil)), http.StatusBadGateway, types.ErrCodeUpstreamLLM},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))

			Error(w, r, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var body APIErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error.Code != string(tt.wantCode) {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Error.Code)
			}
			if body.Error.RequestID != "req-1" {
				t.Errorf("expected request id req-1, got %q", body.Error.RequestID)
			}
		})
	}
}

func TestError_GenericErrorHidesMessage(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, errors.New("pq: password authentication failed"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("internal error leaked: %s", w.Body.String())
	}
}

func TestReadBody(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[{"a":1}]`))
		data, err := ReadBody(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `[{"a":1}]` {
			t.Errorf("unexpected body %q", data)
		}
	})

	t.Run("empty", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("  \n"))
		_, err := ReadBody(r)
		if !types.IsCode(err, types.ErrCodeInvalidJSON) {
			t.Errorf("expected %s, got %v", types.ErrCodeInvalidJSON, err)
		}
	})

	t.Run("too large", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
		r.Body = http.MaxBytesReader(w, r.Body, 16)
		_, err := ReadBody(r)
		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeInvalidJSON {
			t.Fatalf("expected %s, got %v", types.ErrCodeInvalidJSON, err)
		}
		if appErr.Details["limit_bytes"] != int64(16) {
			t.Errorf("expected limit detail, got %v", appErr.Details)
		}
	})
}
