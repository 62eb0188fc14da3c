package handler_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appmeta/appmeta/internal/api/handler"
	"github.com/appmeta/appmeta/internal/api/models"
	"github.com/appmeta/appmeta/internal/export"
	"github.com/appmeta/appmeta/internal/validation"
)

type fakeExporter struct {
	exportReq export.Request
	bundleReq export.BundleRequest
	result    *export.Result
	err       error
}

func (f *fakeExporter) Export(_ context.Context, req export.Request) (*export.Result, error) {
	f.exportReq = req
	return f.result, f.err
}

func (f *fakeExporter) Bundle(_ context.Context, req export.BundleRequest) (*export.Result, error) {
	f.bundleReq = req
	return f.result, f.err
}

func newExportHandler(exp *fakeExporter) *handler.ExportHandler {
	return handler.NewExportHandler(exp, zerolog.New(io.Discard))
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSelectiveDownload_WritesArchive(t *testing.T) {
	exp := &fakeExporter{result: &export.Result{
		Filename:    "apptweak_selective_title_2026-03-14.zip",
		ContentType: export.ContentTypeZip,
		Data:        []byte("zipdata"),
	}}
	h := newExportHandler(exp)

	rec := post(h.SelectiveDownload, "/api/apptweak/metadata/selective-download",
		`{"apps":["284882215"],"country":"fr","selectedElements":["title"],"allInOne":true,
		  "existingMetadata":{"284882215":{"metadata":{"title":"Facebook"}}}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="apptweak_selective_title_2026-03-14.zip"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "7", rec.Header().Get("Content-Length"))
	assert.Equal(t, "zipdata", rec.Body.String())

	assert.Equal(t, []string{"284882215"}, exp.exportReq.Apps)
	assert.Equal(t, "fr", exp.exportReq.Country)
	assert.Equal(t, []string{"title"}, exp.exportReq.Elements)
	assert.True(t, exp.exportReq.AllInOne)
	assert.Equal(t, "Facebook", exp.exportReq.Existing["284882215"].Title)
}

func TestDownload_WritesBundle(t *testing.T) {
	exp := &fakeExporter{result: &export.Result{
		Filename:    "apptweak_metadata_us_iphone_2026-03-14.json",
		ContentType: export.ContentTypeJSON,
		Data:        []byte(`{"metadata":{}}`),
	}}
	h := newExportHandler(exp)

	rec := post(h.Download, "/api/apptweak/metadata/download", `{"apps":["1","2"],"format":"json"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "apptweak_metadata_us_iphone_2026-03-14.json")
	assert.Equal(t, []string{"1", "2"}, exp.bundleReq.Apps)
	assert.Equal(t, "json", exp.bundleReq.Format)
}

func TestSelectiveDownload_InvalidJSON(t *testing.T) {
	exp := &fakeExporter{}
	h := newExportHandler(exp)

	rec := post(h.SelectiveDownload, "/api/apptweak/metadata/selective-download", `{"apps":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, models.CodeInvalidJSON, body.Code)
	assert.Nil(t, exp.exportReq.Apps, "exporter must not be called")
}

func TestSelectiveDownload_BodyTooLarge(t *testing.T) {
	h := newExportHandler(&fakeExporter{})

	body := `{"apps":["` + strings.Repeat("a", handler.MaxBodyBytes) + `"]}`
	rec := post(h.SelectiveDownload, "/api/apptweak/metadata/selective-download", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body is too large", decodeErrorBody(t, rec).Error)
}

func TestSelectiveDownload_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		tag     string
		message string
		want    string
	}{
		{"missing apps", "apps", "required", "apps array is required", "Apps array is required"},
		{"missing elements", "selectedElements", "min", "selectedElements array is required", "Selected elements array is required"},
		{"blank app", "apps[0]", "notblank", "apps[0] must not be blank", "apps[0] must not be blank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &fakeExporter{err: validation.NewRequestValidationError(
				validation.NewValidationError(tt.field, tt.tag, "", nil, tt.message),
			)}
			h := newExportHandler(exp)

			rec := post(h.SelectiveDownload, "/api/apptweak/metadata/selective-download", `{}`)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeErrorBody(t, rec)
			assert.Equal(t, tt.want, body.Error)
			assert.Equal(t, models.CodeValidation, body.Code)
			require.Len(t, body.Errors, 1)
			assert.Equal(t, tt.field, body.Errors[0].Field)
			assert.Equal(t, tt.tag, body.Errors[0].Code)
		})
	}
}

func TestExportHandlers_InternalErrorHidesDetails(t *testing.T) {
	tests := []struct {
		name    string
		call    func(h *handler.ExportHandler) http.HandlerFunc
		message string
	}{
		{"selective", func(h *handler.ExportHandler) http.HandlerFunc { return h.SelectiveDownload }, "Failed to process selective metadata download"},
		{"bundle", func(h *handler.ExportHandler) http.HandlerFunc { return h.Download }, "Failed to process metadata download"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &fakeExporter{err: &export.AssemblyError{Path: "a/b.txt", Err: errors.New("disk on fire")}}
			h := newExportHandler(exp)

			rec := post(tt.call(h), "/x", `{"apps":["1"],"selectedElements":["title"]}`)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decodeErrorBody(t, rec)
			assert.Equal(t, tt.message, body.Error)
			assert.NotContains(t, rec.Body.String(), "disk on fire")
		})
	}
}
