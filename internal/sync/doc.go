// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

/*
Package sync keeps the reference agencies and routes in step with the
operator's GTFS static snapshot.

Each run of the Synchronizer performs one conditional GET of the snapshot
archive. A 304 leaves everything untouched. On 200 the archive's agency.txt
and routes.txt are decoded and every valid row is upserted into the
reference store.

Row handling:

  - An agency without agency_id is accepted as "default" only when the
    snapshot lists at most one agency.
  - A route without agency_id is attached to "default" only when the
    reference store holds at most one agency.
  - A snapshot with no agency rows gets a synthesized "default" agency
    when a route refers to it.
  - Invalid rows are logged and counted. They never abort the run.

The Synchronizer has no internal schedule. It is driven by a
services.LoopService under the reference layer of the supervisor tree:

	syncer := sync.NewSynchronizer(client, store, cfg.Upstream.MetadataURL)
	runner.AddReference(services.NewLoopService("reference-sync", cfg.Reference.Interval, syncer.RunOnce))
*/
package sync
