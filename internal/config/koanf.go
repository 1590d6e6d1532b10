// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is not set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bustinel/config.yaml",
	"/etc/bustinel/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotEnvPathEnvVar overrides the .env file path.
const DotEnvPathEnvVar = "DOTENV_PATH"

func defaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			AuthorizationHeader: "Authorization",
			HeadersFile:         "data/headers.txt",
			Timeout:             30 * time.Second,
			RateLimit:           1.0,
			MaxResponseBytes:    256 << 20, // 256MB, large static archives
		},
		Realtime: RealtimeConfig{
			Interval:     300 * time.Second,
			Workers:      8,
			DrainTimeout: 30 * time.Second,
		},
		Reference: ReferenceConfig{
			Interval: 3600 * time.Second,
			Path:     "data/reference.sqlite3",
		},
		Database: DatabaseConfig{
			Path:      "data/records.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Cache: CacheConfig{
			Backend: "memory",
			Path:    "data/cache",
			Prefix:  "bustinel",
			TTL:     24 * time.Hour,
		},
		Events: EventsConfig{
			Backend: "channel",
			NATS: NATSConfig{
				URL:            "nats://127.0.0.1:4222",
				EmbeddedServer: false,
				StoreDir:       "data/nats",
				StreamName:     "BUSTINEL",
			},
			Outbox: OutboxConfig{
				Enabled:       false,
				Path:          "data/outbox",
				SyncWrites:    true,
				RetryInterval: 30 * time.Second,
				RetryBackoff:  5 * time.Second,
				MaxRetries:    100,
				EntryTTL:      24 * time.Hour,
			},
		},
		Server: ServerConfig{
			Enabled:     true,
			Host:        "0.0.0.0",
			Port:        9464,
			Environment: EnvironmentProduction,
			Timeout:     10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration from defaults, an optional YAML file and
// the environment, then validates it.
func LoadWithKoanf() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := loadLayer(k, file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := loadLayer(k, env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadLayer loads one source into its own instance so duration fields can be
// normalized before merging over the defaults.
func loadLayer(k *koanf.Koanf, p koanf.Provider, parser koanf.Parser) error {
	layer := koanf.New(".")
	if err := layer.Load(p, parser); err != nil {
		return err
	}
	if err := normalizeDurationFields(layer); err != nil {
		return err
	}
	if err := processSliceFields(layer); err != nil {
		return err
	}
	return k.Merge(layer)
}

func loadDotEnv() error {
	path := os.Getenv(DotEnvPathEnvVar)
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// durationConfigPaths accept either a Go duration ("5m") or bare integer
// seconds ("300"), the format used by earlier deployments.
var durationConfigPaths = []string{
	"upstream.timeout",
	"realtime.interval",
	"realtime.drain_timeout",
	"reference.interval",
	"cache.ttl",
	"events.outbox.retry_interval",
	"events.outbox.retry_backoff",
	"events.outbox.entry_ttl",
	"server.timeout",
}

func normalizeDurationFields(k *koanf.Koanf) error {
	for _, path := range durationConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		d, err := parseDurationValue(val)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := k.Set(path, d); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// sliceConfigPaths are parsed from comma-separated strings when they come
// from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func parseDurationValue(val interface{}) (time.Duration, error) {
	switch v := val.(type) {
	case time.Duration:
		return v, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(v)
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: expected seconds or Go duration (e.g. 30s, 5m)", s)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v (%T)", v, v)
	}
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Upstream
		"feed_url":             "upstream.feed_url",
		"metadata_url":         "upstream.metadata_url",
		"contact":              "upstream.contact",
		"authorization":        "upstream.authorization",
		"authorization_header": "upstream.authorization_header",
		"headers_file":         "upstream.headers_file",
		"timeout":              "upstream.timeout",
		"upstream_rate_limit":  "upstream.rate_limit",
		"max_response_bytes":   "upstream.max_response_bytes",

		// Services
		"feed_refresh_interval":     "realtime.interval",
		"realtime_workers":          "realtime.workers",
		"realtime_drain_timeout":    "realtime.drain_timeout",
		"metadata_refresh_interval": "reference.interval",
		"reference_db_path":         "reference.path",

		// Record store
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Fast cache (REDIS_PREFIX kept so existing key prefixes carry over)
		"cache_backend": "cache.backend",
		"cache_path":    "cache.path",
		"cache_prefix":  "cache.prefix",
		"redis_prefix":  "cache.prefix",
		"cache_ttl":     "cache.ttl",

		// Events
		"event_backend":  "events.backend",
		"nats_url":       "events.nats.url",
		"nats_embedded":  "events.nats.embedded_server",
		"nats_store_dir": "events.nats.store_dir",
		"nats_stream":    "events.nats.stream_name",

		// Event outbox
		"outbox_enabled":        "events.outbox.enabled",
		"outbox_path":           "events.outbox.path",
		"outbox_sync_writes":    "events.outbox.sync_writes",
		"outbox_retry_interval": "events.outbox.retry_interval",
		"outbox_retry_backoff":  "events.outbox.retry_backoff",
		"outbox_max_retries":    "events.outbox.max_retries",
		"outbox_entry_ttl":      "events.outbox.entry_ttl",

		// Admin listener
		"http_enabled":      "server.enabled",
		"http_host":         "server.host",
		"http_port":         "server.port",
		"http_timeout":      "server.timeout",
		"http_cors_origins": "server.cors_origins",
		"environment":       "server.environment",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
