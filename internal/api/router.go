// Package api provides the HTTP API for the metadata export service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/appmeta/appmeta/internal/api/handler"
	"github.com/appmeta/appmeta/internal/api/middleware"
	"github.com/appmeta/appmeta/internal/api/response"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Exporter serves the export endpoints.
	Exporter handler.Exporter

	// Ops serves the ops endpoints. When nil one is created from Registry;
	// callers that need SetDraining pass their own.
	Ops      *handler.OpsHandler
	Registry handler.HealthReporter

	CORSOrigins       []string
	RateLimit         middleware.RateLimitConfig
	RateLimitDisabled bool
	AllowServerKey    bool
	RequireTLS        bool
	MaxApps           int
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "appmeta-api"
	}
	corsOrigins := cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	rateLimit := cfg.RateLimit
	if rateLimit.RequestLimit <= 0 || rateLimit.WindowLength <= 0 {
		rateLimit = middleware.ExportRateLimit
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.CORS(corsOrigins))    // Browser dashboards
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.MethodNotAllowed(w, r, "Method not allowed")
	})

	opsHandler := cfg.Ops
	if opsHandler == nil {
		opsHandler = handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry)
	}
	metadataHandler := handler.NewMetadataHandler(cfg.MaxApps)
	exportHandler := handler.NewExportHandler(cfg.Exporter, cfg.Logger)

	r.Route("/api/apptweak/metadata", func(r chi.Router) {
		if !cfg.RateLimitDisabled {
			r.Use(middleware.RateLimitByIP(rateLimit))
		}
		r.Use(middleware.APIKey(cfg.AllowServerKey))
		r.Use(middleware.RequireJSON)

		r.Post("/selective-download", exportHandler.SelectiveDownload)
		r.Post("/download", exportHandler.Download)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Get("/metadata/enums", metadataHandler.GetEnums)
	})

	return r
}
