package core

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sensorpulse/internal/types"
)

func TestRecoverer_WritesErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	handler := RequestIDMiddleware(srv.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-panic")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	var body APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("panic envelope is not valid JSON: %v", err)
	}
	if body.Error.RequestID != "req-panic" {
		t.Errorf("expected request id req-panic, got %q", body.Error.RequestID)
	}
}

func TestRequestLogger_RedactsHeaders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger, []string{"Authorization"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/features", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("User-Agent", "probe")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "secret-token") {
		t.Errorf("authorization header leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Errorf("expected redaction marker: %s", out)
	}
	if !strings.Contains(out, `"status":418`) {
		t.Errorf("expected captured status: %s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Errorf("4xx should log at warn: %s", out)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if seen == "" {
			t.Fatal("expected a generated request id")
		}
		if rec.Header().Get("X-Request-Id") != seen {
			t.Errorf("response header %q does not match context %q", rec.Header().Get("X-Request-Id"), seen)
		}
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "upstream-id")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if seen != "upstream-id" {
			t.Errorf("expected upstream-id, got %q", seen)
		}
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s: expected %q, got %q", header, want, got)
		}
	}
}

func TestStatusRecorder_FlushThroughController(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec}

	_, _ = sr.Write([]byte("data: x\n\n"))
	if err := http.NewResponseController(sr).Flush(); err != nil {
		t.Fatalf("flush through recorder failed: %v", err)
	}
	if !rec.Flushed {
		t.Error("expected underlying recorder to be flushed")
	}
	if sr.code() != http.StatusOK || sr.bytes != 9 {
		t.Errorf("unexpected status %d / bytes %d", sr.code(), sr.bytes)
	}
}

func TestRecoverer_RepanicsAbortHandler(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rvr := recover(); rvr != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", rvr)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestRequestLogger_HealthAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	handler := RequestLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Errorf("health checks should not log at info: %s", buf.String())
	}
}
