// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

/*
Package api serves the operator-only admin listener.

Routes:

	GET /healthz   liveness; 200 while the process is up
	GET /readyz    readiness; 200 when every dependency check passes, else 503
	GET /metrics   Prometheus exposition

There is no domain API. The listener is rate limited per client IP and is
run under the supervisor by services.HTTPServerService.
*/
package api
