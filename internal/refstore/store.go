// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package refstore keeps the reference agencies and routes in SQLite.
//
// The synchronizer is the only writer; the realtime pipeline only reads.
// SQLite allows one writer at a time, so the pool holds a single
// connection and every statement runs in WAL mode with a busy timeout.
package refstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// Store is the reference data store.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create reference store directory %s: %w", dir, err)
		}
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference store: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping reference store: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create reference schema: %w", err)
	}

	logging.Info().Str("path", path).Msg("Reference store opened")
	return &Store{conn: conn, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// UpsertAgency inserts or replaces the agency with a.ID. Re-applying an
// unchanged agency leaves the row, updated_at included, untouched.
func (s *Store) UpsertAgency(ctx context.Context, a models.Agency) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO agencies (agency_id, name, url, timezone, lang, phone, fare_url, email, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agency_id) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			timezone = excluded.timezone,
			lang = excluded.lang,
			phone = excluded.phone,
			fare_url = excluded.fare_url,
			email = excluded.email,
			updated_at = excluded.updated_at
		WHERE name IS NOT excluded.name
			OR url IS NOT excluded.url
			OR timezone IS NOT excluded.timezone
			OR lang IS NOT excluded.lang
			OR phone IS NOT excluded.phone
			OR fare_url IS NOT excluded.fare_url
			OR email IS NOT excluded.email`,
		a.ID, a.Name, a.URL, a.Timezone,
		nullable(a.Lang), nullable(a.Phone), nullable(a.FareURL), nullable(a.Email),
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agency %s: %w", a.ID, err)
	}
	return nil
}

// UpsertRoute inserts or replaces the route with (r.ID, r.AgencyID). Like
// UpsertAgency, an unchanged route is left untouched.
func (s *Store) UpsertRoute(ctx context.Context, r models.Route) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO routes (route_id, agency_id, short_name, long_name, description, vehicle_type, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(route_id, agency_id) DO UPDATE SET
			short_name = excluded.short_name,
			long_name = excluded.long_name,
			description = excluded.description,
			vehicle_type = excluded.vehicle_type,
			updated_at = excluded.updated_at
		WHERE short_name IS NOT excluded.short_name
			OR long_name IS NOT excluded.long_name
			OR description IS NOT excluded.description
			OR vehicle_type IS NOT excluded.vehicle_type`,
		r.ID, r.AgencyID,
		nullable(r.ShortName), nullable(r.LongName), nullable(r.Description),
		int(r.VehicleType), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert route %s/%s: %w", r.AgencyID, r.ID, err)
	}
	return nil
}

// GetAgency returns the agency with id, or nil if there is none.
func (s *Store) GetAgency(ctx context.Context, id string) (*models.Agency, error) {
	var (
		a                        models.Agency
		lang, phone, fare, email sql.NullString
		updated                  int64
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT agency_id, name, url, timezone, lang, phone, fare_url, email, updated_at
		FROM agencies WHERE agency_id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.URL, &a.Timezone, &lang, &phone, &fare, &email, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agency %s: %w", id, err)
	}

	a.Lang = fromNull(lang)
	a.Phone = fromNull(phone)
	a.FareURL = fromNull(fare)
	a.Email = fromNull(email)
	a.UpdatedAt = time.Unix(updated, 0).UTC()
	return &a, nil
}

// GetRoute returns the route with routeID, or nil if there is none. Route
// IDs are looked up without their agency; when several agencies publish the
// same route_id the lowest agency_id wins.
func (s *Store) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	var (
		r                 models.Route
		short, long, desc sql.NullString
		vehicleType       int
		updated           int64
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT route_id, agency_id, short_name, long_name, description, vehicle_type, updated_at
		FROM routes WHERE route_id = ?
		ORDER BY agency_id LIMIT 1`, routeID,
	).Scan(&r.ID, &r.AgencyID, &short, &long, &desc, &vehicleType, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route %s: %w", routeID, err)
	}

	r.ShortName = fromNull(short)
	r.LongName = fromNull(long)
	r.Description = fromNull(desc)
	r.VehicleType = models.VehicleType(vehicleType)
	r.UpdatedAt = time.Unix(updated, 0).UTC()
	return &r, nil
}

// CountAgencies returns the number of stored agencies.
func (s *Store) CountAgencies(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM agencies").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count agencies: %w", err)
	}
	return n, nil
}

// CountRoutes returns the number of stored routes.
func (s *Store) CountRoutes(ctx context.Context) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM routes").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count routes: %w", err)
	}
	return n, nil
}

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
	v := ns.String
	return &v
}
