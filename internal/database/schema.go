// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the records table and its indexes.
//
// The record is stored flattened. created_at is written by the application
// because TIMESTAMP defaults need the ICU extension, which is not loaded.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id VARCHAR NOT NULL,
			trip_id VARCHAR NOT NULL,
			trip_direction INTEGER NOT NULL,
			route_id VARCHAR NOT NULL,
			route_short_name VARCHAR,
			route_long_name VARCHAR,
			route_type INTEGER NOT NULL,
			agency_id VARCHAR NOT NULL,
			agency_name VARCHAR NOT NULL,
			agency_url VARCHAR NOT NULL,
			agency_timezone VARCHAR NOT NULL,
			vehicle_id VARCHAR NOT NULL,
			vehicle_label VARCHAR,
			vehicle_plate VARCHAR,
			vehicle_type INTEGER NOT NULL,
			observed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (trip_id, agency_id, agency_name, vehicle_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_observed_at ON records(observed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_records_route ON records(agency_id, route_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
