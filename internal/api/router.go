// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/bustinel/internal/middleware"
)

// Check is a named readiness probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Config configures the admin router.
type Config struct {
	Version string
	// RateLimitRequests per RateLimitWindow per client IP. Zero disables
	// rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// CheckTimeout bounds each readiness probe. Default: 5s.
	CheckTimeout time.Duration
	// CORSOrigins lets status pages on these origins read the endpoints.
	// Empty disables CORS headers.
	CORSOrigins []string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,
		CheckTimeout:      5 * time.Second,
	}
}

// Router holds the admin handlers.
type Router struct {
	config    Config
	checks    []Check
	startTime time.Time
}

// NewRouter creates the admin router with the given readiness checks.
func NewRouter(config Config, checks ...Check) *Router {
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = 5 * time.Second
	}
	return &Router{
		config:    config,
		checks:    checks,
		startTime: time.Now(),
	}
}

// Handler builds the chi handler.
func (router *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	if len(router.config.CORSOrigins) > 0 {
		// Global so OPTIONS preflights are answered.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: router.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}
	if router.config.RateLimitRequests > 0 {
		r.Use(httprate.LimitByIP(router.config.RateLimitRequests, router.config.RateLimitWindow))
	}

	r.Get("/healthz", router.Healthz)
	r.Get("/readyz", router.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
