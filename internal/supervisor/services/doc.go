// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

/*
Package services provides suture.Service implementations for Bustinel.

LoopService runs a function immediately and then once per interval. It is
used for the reference data synchronizer and the realtime pipeline. It
honors both context cancellation and a cooperative stop flag, and it turns
a panic into permanent termination instead of a restart.

HTTPServerService adapts *http.Server's ListenAndServe/Shutdown pair to
suture's Serve pattern for the admin listener.

Every service implements fmt.Stringer so suture events name it.
*/
package services
