package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing engine errors.
type ErrorCode string

// Complete error code constants.
// Components MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeInvalidSample      ErrorCode = "validation_invalid_sample"
	ErrCodeUnsupportedSensor  ErrorCode = "validation_unsupported_sensor"
	ErrCodeNonFiniteValue     ErrorCode = "validation_non_finite_value"
	ErrCodeInvalidJSON        ErrorCode = "validation_invalid_json"
	ErrCodeValidationBatch    ErrorCode = "validation_batch_size_exceeded"
	ErrCodeInvalidParameter   ErrorCode = "validation_invalid_parameter"
	ErrCodeClockAnomaly       ErrorCode = "clock_anomaly"
	ErrCodeInsufficientData   ErrorCode = "insufficient_data"
	ErrCodeConfigInvalid      ErrorCode = "config_invalid"
	ErrCodeEngineClosed       ErrorCode = "engine_closed"
	ErrCodeNotFoundSensorKind ErrorCode = "not_found_sensor_kind"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB                ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected        ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamLLM               ErrorCode = "upstream_llm_unavailable"
	ErrCodeUpstreamPersistence       ErrorCode = "upstream_persistence_unavailable"
	ErrCodeUpstreamUnavailable       ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited       ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamMalformedResponse ErrorCode = "upstream_malformed_response"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case c == ErrCodeClockAnomaly:
		return http.StatusUnprocessableEntity // 422
	case c == ErrCodeInsufficientData:
		return http.StatusConflict // 409
	case c == ErrCodeEngineClosed:
		return http.StatusServiceUnavailable // 503
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case c == ErrCodeUpstreamRateLimited:
		return http.StatusTooManyRequests // 429
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard error type used throughout the engine.
// Domain failures are expressed as AppError so that the ingest path, the
// analysis passes and the HTTP layer can classify them the same way.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf returns the ErrorCode of the first AppError in err's chain, or the
// empty code when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err's chain contains an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// ErrInsufficientData is the shared "skip" outcome for features and
// predictions that lack data. It is not a failure.
var ErrInsufficientData = NewAppError(ErrCodeInsufficientData, "not enough data for analysis", nil)

// ErrEngineClosed is returned by operations attempted after shutdown.
var ErrEngineClosed = NewAppError(ErrCodeEngineClosed, "engine has been shut down", nil)
