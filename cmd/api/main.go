// Package main provides the entrypoint for the metadata export API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/appmeta/appmeta/internal/api"
	"github.com/appmeta/appmeta/internal/api/handler"
	"github.com/appmeta/appmeta/internal/api/middleware"
	"github.com/appmeta/appmeta/internal/appstore/apptweak"
	"github.com/appmeta/appmeta/internal/config"
	"github.com/appmeta/appmeta/internal/export"
	"github.com/appmeta/appmeta/internal/provider/resilience"
	"github.com/appmeta/appmeta/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "appmeta-api"

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		startupLog := zerolog.New(os.Stderr)
		startupLog.Error().Err(err).Msg("failed to load configuration")
		return err
	}

	log := newLogger(cfg.Logging)
	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Server.Environment).
		Msg("starting metadata export API")

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize HTTP metrics")
		return err
	}
	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		return err
	}
	exportMetrics, err := telemetry.NewExportMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize export metrics")
		return err
	}

	registry := resilience.NewRegistry()
	client := apptweak.NewClient(apptweak.ClientConfig{
		APIKey:        cfg.AppTweak.APIKey,
		BaseURL:       cfg.AppTweak.BaseURL,
		HTTPClient:    newUpstreamClient(apptweak.ProviderName, cfg.AppTweak.Timeout, registry),
		AssetClient:   newUpstreamClient(apptweak.AssetProviderName, cfg.AppTweak.AssetTimeout, registry),
		MaxAssetBytes: cfg.AppTweak.MaxAssetBytes,
		Metrics:       providerMetrics,
		Logger:        log.With().Str("component", "apptweak").Logger(),
	})

	service := export.NewService(export.ServiceConfig{
		Provider:         client,
		Logger:           log.With().Str("component", "export").Logger(),
		Metrics:          exportMetrics,
		ProviderMetrics:  providerMetrics,
		MaxApps:          cfg.Export.MaxApps,
		AppConcurrency:   cfg.Export.AppConcurrency,
		AssetConcurrency: cfg.Export.AssetConcurrency,
		CompressionLevel: cfg.Export.CompressionLevel,
		Timeout:          cfg.Export.Timeout,
		FilenamePrefix:   cfg.Export.FilenamePrefix,
	})

	ops := handler.NewOpsHandler(Version, BuildTime, registry)
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		Exporter:    service,
		Ops:         ops,
		Registry:    registry,
		CORSOrigins: cfg.Security.CORSOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestLimit: cfg.Security.RateLimitRequests,
			WindowLength: cfg.Security.RateLimitWindow,
		},
		RateLimitDisabled: cfg.Security.RateLimitDisabled,
		AllowServerKey:    cfg.AppTweak.AllowServerKey,
		RequireTLS:        cfg.Server.RequireTLS,
		MaxApps:           cfg.Export.MaxApps,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
		return err
	case <-quit:
	}

	log.Info().Msg("shutting down server")
	ops.SetDraining()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.ZerologLevel())

	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}

// newUpstreamClient builds a client registered for status reporting. Its
// breaker only observes, since one client serves every caller.
func newUpstreamClient(name string, timeout time.Duration, registry *resilience.Registry) *resilience.Client {
	cfg := resilience.SharedClientConfig(name)
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	cfg.Registry = registry
	return resilience.NewClient(cfg)
}
