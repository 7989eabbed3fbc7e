package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"sensorpulse/internal/types"
)

// APIResponse is the envelope of every successful response.
type APIResponse struct {
	Data any            `json:"data"`
	Meta map[string]any `json:"meta,omitempty"`
}

// APIErrorResponse is the envelope of every error response.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-visible part of an error.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// internalErrorBody is written when even the error envelope cannot be
// encoded.
var internalErrorBody = []byte(`{"error":{"code":"internal_unexpected_error","message":"failed to encode response"}}`)

// JSON encodes data and writes it with status. Encoding happens before the
// header is sent, so a failure still yields a well-formed 500.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(internalErrorBody)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// Error writes the envelope for err. An AppError anywhere in the chain sets
// the status, code, message and details; anything else becomes an opaque
// 500 so internal messages never reach clients.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	detail := ErrorDetail{
		Code:      string(types.ErrCodeInternalUnexpected),
		Message:   "an unexpected error occurred",
		RequestID: types.GetRequestID(r.Context()),
	}
	status := http.StatusInternalServerError

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		detail.Code = string(appErr.Code)
		detail.Message = appErr.Message
		detail.Details = appErr.Details
		status = appErr.HTTPStatus()
	}
	JSON(w, r, status, APIErrorResponse{Error: detail})
}

// ReadBody reads the whole request body. The size limit is enforced by
// BodyLimitMiddleware; exceeding it, or an empty body, is a
// validation_invalid_json AppError.
func ReadBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, types.NewAppError(types.ErrCodeInvalidJSON, "request body must not be empty", nil)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeInvalidJSON,
				"request body is too large", err,
				map[string]any{"limit_bytes": maxBytesErr.Limit})
		}
		return nil, types.NewAppError(types.ErrCodeInvalidJSON, "failed to read request body", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, types.NewAppError(types.ErrCodeInvalidJSON, "request body must not be empty", nil)
	}
	return data, nil
}
