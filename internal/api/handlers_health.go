// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/bustinel/internal/logging"
)

// LivenessResponse is the /healthz body.
type LivenessResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version,omitempty"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// ReadinessResponse is the /readyz body. Checks maps each probe name to
// "ok" or its error text.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// Healthz reports that the process is alive, regardless of dependencies.
func (router *Router) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, LivenessResponse{
		Status:        "alive",
		Version:       router.config.Version,
		UptimeSeconds: time.Since(router.startTime).Seconds(),
		Timestamp:     time.Now().UTC(),
	})
}

// Readyz runs every readiness check and answers 503 if any fails.
func (router *Router) Readyz(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{
		Status:    "ready",
		Checks:    make(map[string]string, len(router.checks)),
		Timestamp: time.Now().UTC(),
	}

	status := http.StatusOK
	for _, check := range router.checks {
		if err := router.runCheck(r.Context(), check); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("check", check.Name).Msg("Readiness check failed")
			resp.Checks[check.Name] = sanitizeLogValue(err.Error())
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[check.Name] = "ok"
	}

	respondJSON(w, status, resp)
}

func (router *Router) runCheck(ctx context.Context, check Check) error {
	ctx, cancel := context.WithTimeout(ctx, router.config.CheckTimeout)
	defer cancel()
	return check.Ping(ctx)
}
