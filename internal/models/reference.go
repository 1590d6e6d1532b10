// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package models

import "time"

// DefaultAgencyID is attached to agencies and routes of single-operator
// snapshots that omit agency_id.
const DefaultAgencyID = "default"

// Agency is a row of the reference agencies table, keyed by ID.
// Name, URL and Timezone are never empty once stored.
type Agency struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Timezone  string    `json:"timezone"`
	Lang      *string   `json:"lang,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	FareURL   *string   `json:"fare_url,omitempty"`
	Email     *string   `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Route is a row of the reference routes table, keyed by (ID, AgencyID).
type Route struct {
	ID          string      `json:"id"`
	AgencyID    string      `json:"agency_id"`
	ShortName   *string     `json:"short_name,omitempty"`
	LongName    *string     `json:"long_name,omitempty"`
	Description *string     `json:"description,omitempty"`
	VehicleType VehicleType `json:"vehicle_type"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// OptionalString returns nil for an empty string.
func OptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
