// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package models

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/sha3"
)

// Vehicle is the vehicle as observed in one feed entity.
type Vehicle struct {
	ID    string      `json:"id"`
	Label *string     `json:"label,omitempty"`
	Plate *string     `json:"plate,omitempty"`
	Type  VehicleType `json:"type"`
}

// RouteSnapshot is a denormalized copy of the route at observation time.
type RouteSnapshot struct {
	ID        string      `json:"id"`
	ShortName *string     `json:"short_name,omitempty"`
	LongName  *string     `json:"long_name,omitempty"`
	Type      VehicleType `json:"type"`
}

// Trip is the trip as observed in one feed entity.
type Trip struct {
	ID        string        `json:"id"`
	Direction uint32        `json:"direction"`
	Route     RouteSnapshot `json:"route"`
}

// AgencySnapshot is a denormalized copy of the operating agency.
type AgencySnapshot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Timezone string `json:"timezone"`
}

// Record is one observed vehicle trip. Records are immutable once stored.
type Record struct {
	ID        string         `json:"id"`
	Vehicle   Vehicle        `json:"vehicle"`
	Trip      Trip           `json:"trip"`
	Agency    AgencySnapshot `json:"agency"`
	Timestamp time.Time      `json:"timestamp"`
}

// NaturalKey identifies a Record in the durable store. Agency name takes
// part alongside agency id; vehicle label does not.
type NaturalKey struct {
	TripID     string `json:"trip_id"`
	AgencyID   string `json:"agency_id"`
	AgencyName string `json:"agency_name"`
	VehicleID  string `json:"vehicle_id"`
}

// NaturalKey returns the durable dedup key of r.
func (r *Record) NaturalKey() NaturalKey {
	return NaturalKey{
		TripID:     r.Trip.ID,
		AgencyID:   r.Agency.ID,
		AgencyName: r.Agency.Name,
		VehicleID:  r.Vehicle.ID,
	}
}

// Fingerprint returns the fast-path dedup key of r: the hex SHA3-256 of
// "trip:agency:vehicle:label". It is finer than the natural key because the
// vehicle label participates.
func (r *Record) Fingerprint() string {
	return Fingerprint(r.Trip.ID, r.Agency.ID, r.Vehicle.ID, StringValue(r.Vehicle.Label))
}

// Fingerprint hashes the fast-path dedup fields.
func Fingerprint(tripID, agencyID, vehicleID, label string) string {
	sum := sha3.Sum256([]byte(tripID + ":" + agencyID + ":" + vehicleID + ":" + label))
	return hex.EncodeToString(sum[:])
}

// NormalizeLabel drops empty labels. Single-character labels such as "7" or
// "-" are kept; fleets number vehicles that way.
func NormalizeLabel(label string) *string {
	return OptionalString(label)
}

// NormalizePlate drops empty plates and single filler characters such as "-".
func NormalizePlate(plate string) *string {
	if len([]rune(plate)) <= 1 {
		return nil
	}
	return &plate
}
