// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

/*
Package database is the durable record store, backed by DuckDB.

Each observed vehicle trip is stored once in the records table. The table
carries a UNIQUE constraint on the natural key (trip_id, agency_id,
agency_name, vehicle_id), so a second pipeline instance racing on the same
observation loses at the store instead of producing a duplicate:

	inserted, err := db.InsertMany(ctx, staged)
	// inserted holds only the rows that were actually written; publish
	// events for these and nothing else.

Records are never updated once written. The schema is created on open and
the statements are idempotent.
*/
package database
