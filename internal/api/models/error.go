package models

import (
	"net/http"

	"github.com/goccy/go-json"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeUnsupportedMedia = "UNSUPPORTED_MEDIA_TYPE"
	CodeTooManyRequests  = "RATE_LIMITED"
	CodeTLSRequired      = "TLS_REQUIRED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code"`

	// Status repeats the HTTP status code.
	Status int `json:"status"`

	// TraceID is the request identifier for log correlation.
	TraceID string `json:"traceId"`

	// Instance is the request path.
	Instance string `json:"instance,omitempty"`

	// Errors lists field validation failures.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewErrorResponse creates an error body.
func NewErrorResponse(status int, code, message, traceID string) *ErrorResponse {
	return &ErrorResponse{
		Error:   message,
		Code:    code,
		Status:  status,
		TraceID: traceID,
	}
}

// WithInstance sets the request path.
func (e *ErrorResponse) WithInstance(instance string) *ErrorResponse {
	e.Instance = instance
	return e
}

// WithErrors adds field errors.
func (e *ErrorResponse) WithErrors(errors []FieldError) *ErrorResponse {
	e.Errors = errors
	return e
}

// Write writes the error as JSON.
func (e *ErrorResponse) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if e.TraceID != "" {
		w.Header().Set("X-Request-Id", e.TraceID)
	}
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}

// NewBadRequest creates a 400 validation error.
func NewBadRequest(traceID, message string, errors []FieldError) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, CodeValidation, message, traceID).WithErrors(errors)
}

// NewInvalidJSON creates a 400 for an undecodable request body.
func NewInvalidJSON(traceID, message string) *ErrorResponse {
	return NewErrorResponse(http.StatusBadRequest, CodeInvalidJSON, message, traceID)
}

// NewUnauthorized creates a 401.
func NewUnauthorized(traceID, message string) *ErrorResponse {
	return NewErrorResponse(http.StatusUnauthorized, CodeUnauthorized, message, traceID)
}

// NewNotFound creates a 404.
func NewNotFound(traceID, message string) *ErrorResponse {
	return NewErrorResponse(http.StatusNotFound, CodeNotFound, message, traceID)
}

// NewMethodNotAllowed creates a 405.
func NewMethodNotAllowed(traceID, message string) *ErrorResponse {
	return NewErrorResponse(http.StatusMethodNotAllowed, CodeMethodNotAllowed, message, traceID)
}

// NewUnsupportedMediaType creates a 415.
func NewUnsupportedMediaType(traceID, message string) *ErrorResponse {
	return NewErrorResponse(http.StatusUnsupportedMediaType, CodeUnsupportedMedia, message, traceID)
}

// NewTooManyRequests creates a 429.
func NewTooManyRequests(traceID, message string) *ErrorResponse {
	return NewErrorResponse(http.StatusTooManyRequests, CodeTooManyRequests, message, traceID)
}

// NewTLSRequired creates a 403 for plain-HTTP requests.
func NewTLSRequired(traceID string) *ErrorResponse {
	return NewErrorResponse(http.StatusForbidden, CodeTLSRequired, "This endpoint requires HTTPS", traceID)
}

// NewInternalError creates a 500.
func NewInternalError(traceID, message string) *ErrorResponse {
	return NewErrorResponse(http.StatusInternalServerError, CodeInternal, message, traceID)
}

// NewServiceUnavailable creates a 503.
func NewServiceUnavailable(traceID, message string) *ErrorResponse {
	return NewErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, message, traceID)
}
