// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package config loads and validates Bustinel configuration.
//
// Sources are layered with koanf (highest priority last):
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/bustinel/config.yaml)
//  3. Environment variables, including those loaded from a .env file
//
// Only environment variables listed in envMappings are read.
package config

import "time"

// Config is the complete runtime configuration.
type Config struct {
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Realtime  RealtimeConfig  `koanf:"realtime"`
	Reference ReferenceConfig `koanf:"reference"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Events    EventsConfig    `koanf:"events"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// UpstreamConfig describes the two upstream endpoints and how to call them.
type UpstreamConfig struct {
	FeedURL             string        `koanf:"feed_url"`
	MetadataURL         string        `koanf:"metadata_url"`
	Contact             string        `koanf:"contact"`
	Authorization       string        `koanf:"authorization"`
	AuthorizationHeader string        `koanf:"authorization_header"`
	HeadersFile         string        `koanf:"headers_file"`
	Timeout             time.Duration `koanf:"timeout"`
	RateLimit           float64       `koanf:"rate_limit"` // requests per second, 0 disables
	MaxResponseBytes    int64         `koanf:"max_response_bytes"`
}

// RealtimeConfig controls the ingestion pipeline.
type RealtimeConfig struct {
	Interval time.Duration `koanf:"interval"`
	Workers  int           `koanf:"workers"`
	// DrainTimeout bounds the insert+publish tail of a batch that is still
	// running when shutdown begins.
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// ReferenceConfig controls the reference data synchronizer and its store.
type ReferenceConfig struct {
	Interval time.Duration `koanf:"interval"`
	Path     string        `koanf:"path"`
}

// DatabaseConfig configures the DuckDB record store.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`
}

// CacheConfig configures the fast dedup cache.
type CacheConfig struct {
	Backend string        `koanf:"backend"` // memory or badger
	Path    string        `koanf:"path"`
	Prefix  string        `koanf:"prefix"`
	TTL     time.Duration `koanf:"ttl"`
}

// EventsConfig selects the event bus backend.
type EventsConfig struct {
	Backend string       `koanf:"backend"` // channel or nats
	NATS    NATSConfig   `koanf:"nats"`
	Outbox  OutboxConfig `koanf:"outbox"`
}

// OutboxConfig controls the durable event outbox. When enabled every trip
// event is written to BadgerDB before it is published and replayed until
// the bus accepts it.
type OutboxConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path"`
	SyncWrites    bool          `koanf:"sync_writes"`
	RetryInterval time.Duration `koanf:"retry_interval"`
	RetryBackoff  time.Duration `koanf:"retry_backoff"`
	MaxRetries    int           `koanf:"max_retries"`
	EntryTTL      time.Duration `koanf:"entry_ttl"`
}

// NATSConfig is used when Events.Backend is nats (requires the nats build tag).
type NATSConfig struct {
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	StreamName     string `koanf:"stream_name"`
}

// ServerConfig configures the admin listener.
type ServerConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Environment string        `koanf:"environment"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`
}

// LoggingConfig configures internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Environments accepted by ServerConfig.Environment.
const (
	EnvironmentProduction  = "production"
	EnvironmentDevelopment = "development"
	EnvironmentTesting     = "testing"
)

// IsProduction reports whether the process runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvironmentProduction
}

// Load is the application entry point for configuration.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
