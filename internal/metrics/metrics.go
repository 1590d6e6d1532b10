// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package metrics holds the Prometheus collectors for Bustinel.
//
// Collectors are registered on the default registry at init via promauto and
// exposed by the admin listener at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Error categories used by ErrorsTotal.
const (
	CategoryTransport   = "transport"
	CategoryDecode      = "decode"
	CategoryValidation  = "validation"
	CategoryResolution  = "resolution"
	CategoryPersistence = "persistence"
	CategoryCache       = "cache"
	CategoryPublish     = "publish"
	CategoryDefect      = "defect"
)

var (
	// Service runs
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bustinel_run_duration_seconds",
			Help:    "Duration of one synchronizer or pipeline run",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_runs_total",
			Help: "Total service runs by result (ok, error, not_modified)",
		},
		[]string{"service", "result"},
	)

	LastSuccessfulRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bustinel_last_successful_run_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
		[]string{"service"},
	)

	// Realtime pipeline
	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_observations_total",
			Help: "Vehicle observations by dedup outcome",
		},
		[]string{"outcome"},
	)

	RecordsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bustinel_records_inserted_total",
			Help: "Records written to the durable store",
		},
	)

	RecordConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bustinel_record_conflicts_total",
			Help: "Staged records dropped by the natural-key constraint at insert",
		},
	)

	// Reference data
	ReferenceRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_reference_rows_total",
			Help: "Reference rows processed by table and result (upserted, rejected)",
		},
		[]string{"table", "result"},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_events_published_total",
			Help: "Events published on the bus",
		},
		[]string{"topic"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_events_consumed_total",
			Help: "Events handled by in-process consumers",
		},
		[]string{"topic"},
	)

	// Event outbox
	OutboxWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bustinel_outbox_writes_total",
			Help: "Events written to the durable outbox",
		},
	)

	OutboxDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_outbox_deliveries_total",
			Help: "Outbox delivery attempts by result (published, failed, expired, abandoned)",
		},
		[]string{"result"},
	)

	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bustinel_outbox_pending_entries",
			Help: "Outbox entries awaiting delivery",
		},
	)

	// Fast cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_cache_hits_total",
			Help: "Fast cache hits",
		},
		[]string{"backend"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_cache_misses_total",
			Help: "Fast cache misses",
		},
		[]string{"backend"},
	)

	// Upstream
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_upstream_requests_total",
			Help: "Upstream HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bustinel_upstream_request_duration_seconds",
			Help:    "Upstream HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	UpstreamResponseBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bustinel_upstream_response_bytes",
			Help:    "Upstream response body size",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"endpoint"},
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bustinel_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_circuit_breaker_requests_total",
			Help: "Requests through circuit breakers by result (success, failure, rejected)",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bustinel_circuit_breaker_consecutive_failures",
			Help: "Current consecutive failures per circuit breaker",
		},
		[]string{"name"},
	)

	// Admin listener
	AdminRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_admin_requests_total",
			Help: "Admin HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	AdminRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bustinel_admin_request_duration_seconds",
			Help:    "Admin HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AdminActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bustinel_admin_active_requests",
			Help: "Admin HTTP requests in flight",
		},
	)

	// Errors
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustinel_errors_total",
			Help: "Errors by component and category",
		},
		[]string{"component", "category"},
	)

	// Application
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bustinel_app_info",
			Help: "Build and runtime information",
		},
		[]string{"version", "environment"},
	)
)

// RecordRun records the duration and result of a service run.
func RecordRun(service string, duration time.Duration, result string) {
	RunDuration.WithLabelValues(service).Observe(duration.Seconds())
	RunsTotal.WithLabelValues(service, result).Inc()
	if result != "error" {
		LastSuccessfulRun.WithLabelValues(service).Set(float64(time.Now().Unix()))
	}
}

// RecordUpstreamRequest records one upstream HTTP exchange.
// status is 0 for transport errors.
func RecordUpstreamRequest(endpoint string, status int, duration time.Duration, size int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequests.WithLabelValues(endpoint, label).Inc()
	UpstreamRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if size > 0 {
		UpstreamResponseBytes.WithLabelValues(endpoint).Observe(float64(size))
	}
}

// RecordAdminRequest records one admin HTTP request. route is the matched
// route pattern, never the raw path.
func RecordAdminRequest(method, route, status string, duration time.Duration) {
	AdminRequests.WithLabelValues(method, route, status).Inc()
	AdminRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight admin request gauge.
func TrackActiveRequest(start bool) {
	if start {
		AdminActiveRequests.Inc()
		return
	}
	AdminActiveRequests.Dec()
}

// RecordOutboxDelivery counts one outbox delivery attempt.
func RecordOutboxDelivery(result string) {
	OutboxDeliveries.WithLabelValues(result).Inc()
}

// RecordError increments the error counter.
func RecordError(component, category string) {
	ErrorsTotal.WithLabelValues(component, category).Inc()
}

// RecordCacheLookup records a fast cache lookup.
func RecordCacheLookup(backend string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(backend).Inc()
		return
	}
	CacheMisses.WithLabelValues(backend).Inc()
}

// SetAppInfo publishes the version gauge.
func SetAppInfo(version, environment string) {
	AppInfo.WithLabelValues(version, environment).Set(1)
}
