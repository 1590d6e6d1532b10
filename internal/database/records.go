// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/models"
)

const recordColumns = `id, trip_id, trip_direction, route_id, route_short_name, route_long_name, route_type,
	agency_id, agency_name, agency_url, agency_timezone,
	vehicle_id, vehicle_label, vehicle_plate, vehicle_type, observed_at`

// FindOne returns the record stored under key, or nil if there is none.
func (db *DB) FindOne(ctx context.Context, key models.NaturalKey) (*models.Record, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `SELECT ` + recordColumns + ` FROM records
		WHERE trip_id = ? AND agency_id = ? AND agency_name = ? AND vehicle_id = ?
		LIMIT 1`

	row := db.conn.QueryRowContext(ctx, query, key.TripID, key.AgencyID, key.AgencyName, key.VehicleID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	return record, nil
}

// InsertMany writes records in one transaction and returns the subset that
// was actually inserted. Rows whose natural key already exists, in the store
// or earlier in the same batch, are dropped without error. Records without
// an ID are given a fresh UUID.
func (db *DB) InsertMany(ctx context.Context, records []models.Record) ([]models.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (`+recordColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (trip_id, agency_id, agency_name, vehicle_id) DO NOTHING
		RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	now := time.Now().UTC()
	seen := make(map[models.NaturalKey]struct{}, len(records))
	inserted := make([]models.Record, 0, len(records))

	for i := range records {
		r := records[i]
		key := r.NaturalKey()
		if _, dup := seen[key]; dup {
			logging.Debug().Str("trip_id", key.TripID).Str("vehicle_id", key.VehicleID).Msg("Duplicate natural key within batch dropped")
			continue
		}
		seen[key] = struct{}{}

		if r.ID == "" {
			r.ID = uuid.NewString()
		}

		var id string
		err := stmt.QueryRowContext(ctx,
			r.ID, r.Trip.ID, int64(r.Trip.Direction), r.Trip.Route.ID,
			nullable(r.Trip.Route.ShortName), nullable(r.Trip.Route.LongName), int(r.Trip.Route.Type),
			r.Agency.ID, r.Agency.Name, r.Agency.URL, r.Agency.Timezone,
			r.Vehicle.ID, nullable(r.Vehicle.Label), nullable(r.Vehicle.Plate), int(r.Vehicle.Type),
			r.Timestamp.UTC(), now,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			logging.Debug().Str("trip_id", key.TripID).Str("vehicle_id", key.VehicleID).Msg("Record already stored, insert skipped")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert record for trip %s: %w", key.TripID, err)
		}
		inserted = append(inserted, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit records: %w", err)
	}
	return inserted, nil
}

// Count returns the number of stored records.
func (db *DB) Count(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func scanRecord(row *sql.Row) (*models.Record, error) {
	var (
		r                                 models.Record
		direction                         int64
		routeType, vehicleType            int
		shortName, longName, label, plate sql.NullString
		observedAt                        time.Time
	)
	err := row.Scan(
		&r.ID, &r.Trip.ID, &direction, &r.Trip.Route.ID, &shortName, &longName, &routeType,
		&r.Agency.ID, &r.Agency.Name, &r.Agency.URL, &r.Agency.Timezone,
		&r.Vehicle.ID, &label, &plate, &vehicleType, &observedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Trip.Direction = uint32(direction)
	r.Trip.Route.ShortName = fromNull(shortName)
	r.Trip.Route.LongName = fromNull(longName)
	r.Trip.Route.Type = models.VehicleType(routeType)
	r.Vehicle.Label = fromNull(label)
	r.Vehicle.Plate = fromNull(plate)
	r.Vehicle.Type = models.VehicleType(vehicleType)
	r.Timestamp = observedAt.UTC()
	return &r, nil
}

// nullable maps a nil pointer to SQL NULL.
func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
