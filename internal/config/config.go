// Package config loads service configuration from defaults, an optional YAML
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	AppTweak  AppTweakConfig  `koanf:"apptweak"`
	Export    ExportConfig    `koanf:"export"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Environment     string        `koanf:"environment"`
	RequireTLS      bool          `koanf:"require_tls"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SampleRatio  float64 `koanf:"sample_ratio"`

	// MetricInterval is the OTLP metric export period.
	MetricInterval time.Duration `koanf:"metric_interval"`
}

// AppTweakConfig configures the upstream metadata API client.
type AppTweakConfig struct {
	BaseURL string `koanf:"base_url"`

	// APIKey is used only when a request carries no x-apptweak-key header
	// and AllowServerKey is set.
	APIKey         string `koanf:"api_key"`
	AllowServerKey bool   `koanf:"allow_server_key"`

	Timeout       time.Duration `koanf:"timeout"`
	AssetTimeout  time.Duration `koanf:"asset_timeout"`
	MaxAssetBytes int64         `koanf:"max_asset_bytes"`
}

// ExportConfig bounds archive and bundle exports.
type ExportConfig struct {
	MaxApps          int           `koanf:"max_apps"`
	AppConcurrency   int           `koanf:"app_concurrency"`
	AssetConcurrency int           `koanf:"asset_concurrency"`
	CompressionLevel int           `koanf:"compression_level"`
	Timeout          time.Duration `koanf:"timeout"`
	FilenamePrefix   string        `koanf:"filename_prefix"`
}

// SecurityConfig configures CORS and request rate limiting.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// ZerologLevel parses Level, defaulting to info.
func (l LoggingConfig) ZerologLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(l.Level))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Environment:     "development",
			RequireTLS:      false,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    150 * time.Second, // must outlive export.timeout
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			OTLPEndpoint:   "localhost:4317",
			SampleRatio:    1,
			MetricInterval: 15 * time.Second,
		},
		AppTweak: AppTweakConfig{
			BaseURL:        "https://public-api.apptweak.com/api/public",
			APIKey:         "",
			AllowServerKey: false,
			Timeout:        30 * time.Second,
			AssetTimeout:   30 * time.Second,
			MaxAssetBytes:  20 << 20,
		},
		Export: ExportConfig{
			MaxApps:          10,
			AppConcurrency:   4,
			AssetConcurrency: 8,
			CompressionLevel: 9,
			Timeout:          120 * time.Second,
			FilenamePrefix:   "apptweak_selective",
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 30,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Export.Timeout > 0 && c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Export.Timeout {
		errs = append(errs, fmt.Errorf("server.write_timeout (%s) must exceed export.timeout (%s)",
			c.Server.WriteTimeout, c.Export.Timeout))
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, errors.New("telemetry.otlp_endpoint is required when telemetry is enabled"))
	}
	if c.Telemetry.Enabled && c.Telemetry.MetricInterval <= 0 {
		errs = append(errs, errors.New("telemetry.metric_interval must be positive when telemetry is enabled"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be between 0 and 1, got %v", c.Telemetry.SampleRatio))
	}

	if c.AppTweak.BaseURL == "" {
		errs = append(errs, errors.New("apptweak.base_url is required"))
	}
	if c.AppTweak.AllowServerKey && c.AppTweak.APIKey == "" {
		errs = append(errs, errors.New("apptweak.api_key is required when apptweak.allow_server_key is set"))
	}
	if c.AppTweak.MaxAssetBytes <= 0 {
		errs = append(errs, errors.New("apptweak.max_asset_bytes must be positive"))
	}

	if c.Export.MaxApps < 1 {
		errs = append(errs, fmt.Errorf("export.max_apps must be at least 1, got %d", c.Export.MaxApps))
	}
	if c.Export.AppConcurrency < 1 {
		errs = append(errs, fmt.Errorf("export.app_concurrency must be at least 1, got %d", c.Export.AppConcurrency))
	}
	if c.Export.AssetConcurrency < 1 {
		errs = append(errs, fmt.Errorf("export.asset_concurrency must be at least 1, got %d", c.Export.AssetConcurrency))
	}
	if c.Export.CompressionLevel < -1 || c.Export.CompressionLevel > 9 {
		errs = append(errs, fmt.Errorf("export.compression_level must be between -1 and 9, got %d", c.Export.CompressionLevel))
	}
	if c.Export.FilenamePrefix == "" {
		errs = append(errs, errors.New("export.filename_prefix is required"))
	}

	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitRequests < 1 {
			errs = append(errs, errors.New("security.rate_limit_requests must be at least 1"))
		}
		if c.Security.RateLimitWindow <= 0 {
			errs = append(errs, errors.New("security.rate_limit_window must be positive"))
		}
	}

	return errors.Join(errs...)
}
