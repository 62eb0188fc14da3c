package models_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appmeta/appmeta/internal/api/models"
)

func TestErrorResponse_Write(t *testing.T) {
	e := models.NewBadRequest("req_test123", "Apps array is required", []models.FieldError{
		{Field: "apps", Message: "apps array is required", Code: "required"},
	}).WithInstance("/api/apptweak/metadata/selective-download")

	rec := httptest.NewRecorder()
	e.Write(rec)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_test123", rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{
		"error": "Apps array is required",
		"code": "VALIDATION_ERROR",
		"status": 400,
		"traceId": "req_test123",
		"instance": "/api/apptweak/metadata/selective-download",
		"errors": [{"field": "apps", "message": "apps array is required", "code": "required"}]
	}`, rec.Body.String())
}

func TestErrorResponse_OmitsEmptyOptionalFields(t *testing.T) {
	rec := httptest.NewRecorder()
	models.NewUnauthorized("", "API key is required").Write(rec)

	assert.Empty(t, rec.Header().Get("X-Request-Id"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "errors")
	assert.NotContains(t, body, "instance")
	assert.Equal(t, "API key is required", body["error"])
}

func TestErrorResponse_Constructors(t *testing.T) {
	tests := []struct {
		name   string
		resp   *models.ErrorResponse
		status int
		code   string
	}{
		{"bad request", models.NewBadRequest("t", "m", nil), http.StatusBadRequest, models.CodeValidation},
		{"invalid json", models.NewInvalidJSON("t", "m"), http.StatusBadRequest, models.CodeInvalidJSON},
		{"unauthorized", models.NewUnauthorized("t", "m"), http.StatusUnauthorized, models.CodeUnauthorized},
		{"not found", models.NewNotFound("t", "m"), http.StatusNotFound, models.CodeNotFound},
		{"method not allowed", models.NewMethodNotAllowed("t", "m"), http.StatusMethodNotAllowed, models.CodeMethodNotAllowed},
		{"unsupported media", models.NewUnsupportedMediaType("t", "m"), http.StatusUnsupportedMediaType, models.CodeUnsupportedMedia},
		{"too many requests", models.NewTooManyRequests("t", "m"), http.StatusTooManyRequests, models.CodeTooManyRequests},
		{"tls required", models.NewTLSRequired("t"), http.StatusForbidden, models.CodeTLSRequired},
		{"internal", models.NewInternalError("t", "m"), http.StatusInternalServerError, models.CodeInternal},
		{"unavailable", models.NewServiceUnavailable("t", "m"), http.StatusServiceUnavailable, models.CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.resp.Status)
			assert.Equal(t, tt.code, tt.resp.Code)
			assert.Equal(t, "t", tt.resp.TraceID)
		})
	}
}

func TestTimestamp_JSON(t *testing.T) {
	ts := models.Timestamp(time.Date(2026, 3, 14, 10, 0, 0, 0, time.FixedZone("CET", 3600)))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-14T09:00:00Z"`, string(data))

	var back models.Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Time().Equal(ts.Time()))

	assert.Nil(t, models.TimestampPtr(nil))
	now := time.Now()
	assert.Equal(t, now, models.TimestampPtr(&now).Time())
}
