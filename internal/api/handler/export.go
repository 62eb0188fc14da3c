// Package handler provides HTTP handlers for the metadata export API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/appmeta/appmeta/internal/api/middleware"
	"github.com/appmeta/appmeta/internal/api/models"
	"github.com/appmeta/appmeta/internal/api/response"
	"github.com/appmeta/appmeta/internal/export"
	"github.com/appmeta/appmeta/internal/validation"
)

// MaxBodyBytes bounds export request bodies, existingMetadata included.
const MaxBodyBytes = 10 << 20

const (
	msgSelectiveFailed = "Failed to process selective metadata download"
	msgDownloadFailed  = "Failed to process metadata download"
)

// Exporter produces export files. *export.Service implements it.
type Exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
	Bundle(ctx context.Context, req export.BundleRequest) (*export.Result, error)
}

// ExportHandler serves the AppTweak metadata export endpoints.
type ExportHandler struct {
	exporter Exporter
	logger   zerolog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(exporter Exporter, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		exporter: exporter,
		logger:   logger,
	}
}

// SelectiveDownload handles POST /api/apptweak/metadata/selective-download.
func (h *ExportHandler) SelectiveDownload(w http.ResponseWriter, r *http.Request) {
	var req export.Request
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.exporter.Export(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, msgSelectiveFailed)
		return
	}

	response.Attachment(w, r, result.Filename, result.ContentType, result.Data)
}

// Download handles POST /api/apptweak/metadata/download.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req export.BundleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.exporter.Bundle(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err, msgDownloadFailed)
		return
	}

	response.Attachment(w, r, result.Filename, result.ContentType, result.Data)
}

// decodeBody reads a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.InvalidJSON(w, r, "Request body is too large")
			return false
		}
		response.InvalidJSON(w, r, "Request body must be valid JSON")
		return false
	}
	return true
}

func (h *ExportHandler) writeError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if verr, ok := validation.AsRequestValidationError(err); ok {
		fieldErrors := toFieldErrors(verr)
		response.BadRequest(w, r, validationMessage(fieldErrors), fieldErrors)
		return
	}

	log := zerolog.Ctx(r.Context())
	if log.GetLevel() == zerolog.Disabled {
		log = &h.logger
	}
	event := log.Error().Err(err).Str("request_id", middleware.GetRequestID(r.Context()))
	var aerr *export.AssemblyError
	if errors.As(err, &aerr) {
		event = event.Str("entry", aerr.Path)
	}
	event.Msg("export failed")

	response.InternalError(w, r, message)
}

func toFieldErrors(verr *validation.RequestValidationError) []models.FieldError {
	errs := verr.Errors()
	out := make([]models.FieldError, len(errs))
	for i := range errs {
		out[i] = models.FieldError{
			Field:   errs[i].Field(),
			Message: errs[i].Error(),
			Code:    errs[i].Tag(),
		}
	}
	return out
}

// fieldLabels gives the top-level message its user-facing field name.
var fieldLabels = map[string]string{
	"apps":             "Apps",
	"selectedElements": "Selected elements",
	"format":           "Format",
}

// validationMessage builds the top-level message from the first field error,
// e.g. "Apps array is required".
func validationMessage(errs []models.FieldError) string {
	if len(errs) == 0 {
		return "Invalid request"
	}
	first := errs[0]
	label, ok := fieldLabels[first.Field]
	if !ok || !strings.HasPrefix(first.Message, first.Field) {
		return first.Message
	}
	return label + strings.TrimPrefix(first.Message, first.Field)
}
