// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// setRequiredEnv sets the minimal environment for a valid configuration.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv(DotEnvPathEnvVar, filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("FEED_URL", "https://feeds.example.org/gtfs-rt/vehicle-positions")
	t.Setenv("METADATA_URL", "https://feeds.example.org/gtfs/static.zip")
}

func TestLoadWithKoanf_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Upstream.Timeout != 30*time.Second {
		t.Errorf("Upstream.Timeout = %v, want 30s", cfg.Upstream.Timeout)
	}
	if cfg.Realtime.Interval != 300*time.Second {
		t.Errorf("Realtime.Interval = %v, want 300s", cfg.Realtime.Interval)
	}
	if cfg.Reference.Interval != time.Hour {
		t.Errorf("Reference.Interval = %v, want 1h", cfg.Reference.Interval)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
	}
	if cfg.Events.Backend != "channel" {
		t.Errorf("Events.Backend = %q, want channel", cfg.Events.Backend)
	}
	if cfg.Upstream.AuthorizationHeader != "Authorization" {
		t.Errorf("AuthorizationHeader = %q, want Authorization", cfg.Upstream.AuthorizationHeader)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true by default")
	}
}

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TIMEOUT", "45")
	t.Setenv("FEED_REFRESH_INTERVAL", "2m")
	t.Setenv("METADATA_REFRESH_INTERVAL", "7200")
	t.Setenv("CONTACT", "ops@example.org")
	t.Setenv("AUTHORIZATION", "secret-key")
	t.Setenv("AUTHORIZATION_HEADER", "X-Api-Key")
	t.Setenv("REALTIME_WORKERS", "3")
	t.Setenv("DUCKDB_PATH", "/tmp/records.duckdb")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Upstream.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", cfg.Upstream.Timeout)
	}
	if cfg.Realtime.Interval != 2*time.Minute {
		t.Errorf("Realtime.Interval = %v, want 2m", cfg.Realtime.Interval)
	}
	if cfg.Reference.Interval != 2*time.Hour {
		t.Errorf("Reference.Interval = %v, want 2h", cfg.Reference.Interval)
	}
	if cfg.Upstream.Contact != "ops@example.org" {
		t.Errorf("Contact = %q", cfg.Upstream.Contact)
	}
	if cfg.Upstream.Authorization != "secret-key" || cfg.Upstream.AuthorizationHeader != "X-Api-Key" {
		t.Errorf("Authorization = %q/%q", cfg.Upstream.AuthorizationHeader, cfg.Upstream.Authorization)
	}
	if cfg.Realtime.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Realtime.Workers)
	}
	if cfg.Database.Path != "/tmp/records.duckdb" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithKoanf_RedisPrefixAlias(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REDIS_PREFIX", "legacy")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Cache.Prefix != "legacy" {
		t.Errorf("Cache.Prefix = %q, want legacy", cfg.Cache.Prefix)
	}
}

func TestLoadWithKoanf_CORSOriginsList(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_CORS_ORIGINS", "https://status.example, https://ops.example,")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	want := []string{"https://status.example", "https://ops.example"}
	if strings.Join(cfg.Server.CORSOrigins, "|") != strings.Join(want, "|") {
		t.Errorf("Server.CORSOrigins = %q, want %q", cfg.Server.CORSOrigins, want)
	}
}

func TestLoadWithKoanf_OutboxEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OUTBOX_ENABLED", "true")
	t.Setenv("OUTBOX_RETRY_INTERVAL", "45")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if !cfg.Events.Outbox.Enabled {
		t.Error("Events.Outbox.Enabled = false")
	}
	if cfg.Events.Outbox.RetryInterval != 45*time.Second {
		t.Errorf("RetryInterval = %v, want 45s", cfg.Events.Outbox.RetryInterval)
	}
}

func TestLoadWithKoanf_YAMLFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
realtime:
  interval: 60
  workers: 2
cache:
  backend: badger
  path: /var/lib/bustinel/cache
server:
  timeout: 5s
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	// Environment wins over the file.
	t.Setenv("REALTIME_WORKERS", "4")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Realtime.Interval != time.Minute {
		t.Errorf("Realtime.Interval = %v, want 1m", cfg.Realtime.Interval)
	}
	if cfg.Realtime.Workers != 4 {
		t.Errorf("Realtime.Workers = %d, want 4 from env", cfg.Realtime.Workers)
	}
	if cfg.Cache.Backend != "badger" || cfg.Cache.Path != "/var/lib/bustinel/cache" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Server.Timeout != 5*time.Second {
		t.Errorf("Server.Timeout = %v, want 5s", cfg.Server.Timeout)
	}
}

func TestLoadWithKoanf_DotEnv(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "absent.yaml"))

	path := filepath.Join(t.TempDir(), "test.env")
	content := "FEED_URL=https://dotenv.example.org/rt\nMETADATA_URL=https://dotenv.example.org/static.zip\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(DotEnvPathEnvVar, path)
	// godotenv never overrides variables that are already set, so make sure
	// these start out empty and are restored afterwards.
	t.Setenv("FEED_URL", "")
	t.Setenv("METADATA_URL", "")
	os.Unsetenv("FEED_URL")
	os.Unsetenv("METADATA_URL")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Upstream.FeedURL != "https://dotenv.example.org/rt" {
		t.Errorf("FeedURL = %q", cfg.Upstream.FeedURL)
	}
}

func TestLoadWithKoanf_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FEED_REFRESH_INTERVAL", "soon")

	_, err := LoadWithKoanf()
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "realtime.interval") {
		t.Errorf("error %q does not name the field", err)
	}
}

func TestParseDurationValue(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		want    time.Duration
		wantErr bool
	}{
		{"int seconds", 300, 300 * time.Second, false},
		{"int64 seconds", int64(30), 30 * time.Second, false},
		{"float seconds", 1.5, 1500 * time.Millisecond, false},
		{"digit string", "3600", time.Hour, false},
		{"go duration", "5m", 5 * time.Minute, false},
		{"padded", " 10s ", 10 * time.Second, false},
		{"duration passthrough", 2 * time.Second, 2 * time.Second, false},
		{"garbage", "later", 0, true},
		{"bool", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDurationValue(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDurationValue(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseDurationValue(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"FEED_URL", "upstream.feed_url"},
		{"METADATA_URL", "upstream.metadata_url"},
		{"FEED_REFRESH_INTERVAL", "realtime.interval"},
		{"METADATA_REFRESH_INTERVAL", "reference.interval"},
		{"REDIS_PREFIX", "cache.prefix"},
		{"CACHE_PREFIX", "cache.prefix"},
		{"NATS_EMBEDDED", "events.nats.embedded_server"},
		{"OUTBOX_RETRY_INTERVAL", "events.outbox.retry_interval"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := envTransformFunc(tt.env); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
			}
		})
	}
}
