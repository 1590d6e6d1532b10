// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/validation"
)

// MinUpstreamTimeout is the smallest accepted TIMEOUT.
const MinUpstreamTimeout = 30 * time.Second

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateUpstream(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateUpstream() error {
	if c.Upstream.FeedURL == "" {
		return fmt.Errorf("FEED_URL is required")
	}
	if err := validateHTTPURL(c.Upstream.FeedURL, "FEED_URL"); err != nil {
		return err
	}
	if c.Upstream.MetadataURL == "" {
		return fmt.Errorf("METADATA_URL is required")
	}
	if err := validateHTTPURL(c.Upstream.MetadataURL, "METADATA_URL"); err != nil {
		return err
	}
	if c.Upstream.Contact != "" {
		if err := validation.ValidateVar(c.Upstream.Contact, "email"); err != nil {
			return fmt.Errorf("CONTACT must be a valid email address, got %q", c.Upstream.Contact)
		}
	}
	if c.Upstream.Authorization != "" && strings.TrimSpace(c.Upstream.AuthorizationHeader) == "" {
		return fmt.Errorf("AUTHORIZATION_HEADER must not be empty when AUTHORIZATION is set")
	}
	if c.Upstream.Timeout < MinUpstreamTimeout {
		return fmt.Errorf("TIMEOUT must be at least %s, got %s", MinUpstreamTimeout, c.Upstream.Timeout)
	}
	if c.Upstream.RateLimit < 0 {
		return fmt.Errorf("UPSTREAM_RATE_LIMIT must not be negative, got %v", c.Upstream.RateLimit)
	}
	if c.Upstream.MaxResponseBytes <= 0 {
		return fmt.Errorf("MAX_RESPONSE_BYTES must be positive, got %d", c.Upstream.MaxResponseBytes)
	}
	return nil
}

func (c *Config) validateServices() error {
	if c.Realtime.Interval <= 0 {
		return fmt.Errorf("FEED_REFRESH_INTERVAL must be positive, got %s", c.Realtime.Interval)
	}
	if c.Reference.Interval <= 0 {
		return fmt.Errorf("METADATA_REFRESH_INTERVAL must be positive, got %s", c.Reference.Interval)
	}
	if c.Realtime.Workers < 1 {
		return fmt.Errorf("REALTIME_WORKERS must be at least 1, got %d", c.Realtime.Workers)
	}
	if c.Realtime.DrainTimeout <= 0 {
		return fmt.Errorf("REALTIME_DRAIN_TIMEOUT must be positive, got %s", c.Realtime.DrainTimeout)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Reference.Path == "" {
		return fmt.Errorf("REFERENCE_DB_PATH is required")
	}
	switch c.Cache.Backend {
	case "memory":
	case "badger":
		if c.Cache.Path == "" {
			return fmt.Errorf("CACHE_PATH is required when CACHE_BACKEND=badger")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be memory or badger, got %q", c.Cache.Backend)
	}
	if c.Cache.Prefix == "" {
		return fmt.Errorf("CACHE_PREFIX must not be empty")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.Cache.TTL)
	}
	return nil
}

func (c *Config) validateEvents() error {
	if err := c.validateOutbox(); err != nil {
		return err
	}
	switch c.Events.Backend {
	case "channel":
		return nil
	case "nats":
		if !c.Events.NATS.EmbeddedServer && c.Events.NATS.URL == "" {
			return fmt.Errorf("NATS_URL is required when EVENT_BACKEND=nats and NATS_EMBEDDED=false")
		}
		if c.Events.NATS.StreamName == "" {
			return fmt.Errorf("NATS_STREAM must not be empty")
		}
		return nil
	default:
		return fmt.Errorf("EVENT_BACKEND must be channel or nats, got %q", c.Events.Backend)
	}
}

func (c *Config) validateOutbox() error {
	o := c.Events.Outbox
	if !o.Enabled {
		return nil
	}
	if o.Path == "" {
		return fmt.Errorf("OUTBOX_PATH is required when OUTBOX_ENABLED=true")
	}
	if o.RetryInterval <= 0 {
		return fmt.Errorf("OUTBOX_RETRY_INTERVAL must be positive, got %s", o.RetryInterval)
	}
	if o.RetryBackoff <= 0 {
		return fmt.Errorf("OUTBOX_RETRY_BACKOFF must be positive, got %s", o.RetryBackoff)
	}
	if o.MaxRetries < 1 {
		return fmt.Errorf("OUTBOX_MAX_RETRIES must be at least 1, got %d", o.MaxRetries)
	}
	if o.EntryTTL <= 0 {
		return fmt.Errorf("OUTBOX_ENTRY_TTL must be positive, got %s", o.EntryTTL)
	}
	return nil
}

func (c *Config) validateServer() error {
	switch c.Server.Environment {
	case EnvironmentProduction, EnvironmentDevelopment, EnvironmentTesting:
	default:
		return fmt.Errorf("ENVIRONMENT must be one of production, development, testing; got %q", c.Server.Environment)
	}
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

// validateHTTPURL accepts absolute http(s) URLs with a host. Paths and
// queries are allowed since feed endpoints commonly carry API keys.
func validateHTTPURL(rawURL, fieldName string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %q", fieldName, parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	return nil
}
