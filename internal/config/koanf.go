package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/appmeta/config.yaml",
}

// ConfigPathEnvVar names the variable holding an explicit config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envMappings maps environment variable names (lower case) to config paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"app_port":              "server.port",
	"app_env":               "server.environment",
	"require_tls":           "server.require_tls",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"otel_enabled":                "telemetry.enabled",
	"otel_exporter_otlp_endpoint": "telemetry.otlp_endpoint",
	"otel_sample_ratio":           "telemetry.sample_ratio",
	"otel_metric_interval":        "telemetry.metric_interval",

	"apptweak_base_url":         "apptweak.base_url",
	"apptweak_api_key":          "apptweak.api_key",
	"apptweak_allow_server_key": "apptweak.allow_server_key",
	"apptweak_timeout":          "apptweak.timeout",
	"apptweak_asset_timeout":    "apptweak.asset_timeout",
	"apptweak_max_asset_bytes":  "apptweak.max_asset_bytes",

	"export_max_apps":          "export.max_apps",
	"export_app_concurrency":   "export.app_concurrency",
	"export_asset_concurrency": "export.asset_concurrency",
	"export_compression_level": "export.compression_level",
	"export_timeout":           "export.timeout",
	"export_filename_prefix":   "export.filename_prefix",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"rate_limit_disabled": "security.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_pretty": "logging.pretty",
}

// sliceConfigPaths hold comma-separated lists when set from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// Load builds the configuration from three layers, lowest priority first:
// struct defaults, the YAML config file (if any), environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("processing list values: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps a variable name to its config path, or "" to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}

		parts := strings.Split(raw, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				values = append(values, p)
			}
		}
		if len(values) == 0 {
			continue
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("setting %s: %w", path, err)
		}
	}
	return nil
}
