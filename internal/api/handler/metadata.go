package handler

import (
	"net/http"

	"github.com/appmeta/appmeta/internal/api/models"
	"github.com/appmeta/appmeta/internal/api/response"
	"github.com/appmeta/appmeta/internal/appstore"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	maxApps int
}

// NewMetadataHandler creates a new MetadataHandler.
func NewMetadataHandler(maxApps int) *MetadataHandler {
	return &MetadataHandler{maxApps: maxApps}
}

// GetEnums handles GET /v1/metadata/enums - values accepted by the export endpoints.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	kinds := appstore.AllElements()
	elements := make([]string, len(kinds))
	for i, k := range kinds {
		elements[i] = string(k)
	}

	enums := models.Enums{
		Elements:         elements,
		CountryLanguages: appstore.CountryLanguages(),
		Defaults: models.RequestDefaults{
			Country:  appstore.DefaultCountry,
			Device:   appstore.DefaultDevice,
			Language: appstore.DefaultLanguage,
		},
		Formats: []string{"json"},
		MaxApps: h.maxApps,
	}
	response.JSON(w, r, http.StatusOK, enums)
}
