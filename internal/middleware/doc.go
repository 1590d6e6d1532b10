// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package middleware provides HTTP middleware for the admin listener:
// request IDs bound to the logging correlation ID, and Prometheus request
// instrumentation labelled by chi route pattern.
package middleware
