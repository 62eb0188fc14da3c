// Package response provides utilities for HTTP response handling.
package response

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/appmeta/appmeta/internal/api/middleware"
	"github.com/appmeta/appmeta/internal/api/models"
)

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Attachment writes data as a downloadable file.
func Attachment(w http.ResponseWriter, r *http.Request, filename, contentType string, data []byte) {
	setRequestID(w, r)
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Error writes an error body, filling in the request path.
func Error(w http.ResponseWriter, r *http.Request, body *models.ErrorResponse) {
	body.WithInstance(r.URL.Path).Write(w)
}

// BadRequest writes a 400 validation error.
func BadRequest(w http.ResponseWriter, r *http.Request, message string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), message, errors))
}

// InvalidJSON writes a 400 for a body that could not be decoded.
func InvalidJSON(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, models.NewInvalidJSON(middleware.GetRequestID(r.Context()), message))
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, models.NewUnauthorized(middleware.GetRequestID(r.Context()), message))
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), message))
}

// MethodNotAllowed writes a 405.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, models.NewMethodNotAllowed(middleware.GetRequestID(r.Context()), message))
}

// InternalError writes a 500. The message must not leak internal details.
func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), message))
}

// ServiceUnavailable writes a 503.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), message))
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
}
