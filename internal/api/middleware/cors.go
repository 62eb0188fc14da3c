package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/appmeta/appmeta/internal/appstore/apptweak"
)

// CORS allows browser clients on the given origins to call the export
// endpoints and read the attachment headers.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader, apptweak.APIKeyHeader},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length", RequestIDHeader, "Retry-After"},
		MaxAge:         300,
	})
}
