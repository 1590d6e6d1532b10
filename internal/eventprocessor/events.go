// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package eventprocessor

import (
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/bustinel/internal/models"
)

// TopicTripsObserved is the topic of TripObservedEvent.
const TopicTripsObserved = "trips.observed"

// SchemaVersion is the current event schema version.
// Increment this when making breaking changes to TripObservedEvent.
const SchemaVersion = 1

// TripObservedEvent announces a newly stored Record together with the
// reference entities it was resolved against.
type TripObservedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventID       string    `json:"event_id"`
	OccurredAt    time.Time `json:"occurred_at"`

	Record models.Record `json:"record"`
	Agency models.Agency `json:"agency"`
	Route  models.Route  `json:"route"`
}

// NewTripObservedEvent creates an event with a fresh ID.
func NewTripObservedEvent(record models.Record, agency models.Agency, route models.Route) *TripObservedEvent {
	return &TripObservedEvent{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.New().String(),
		OccurredAt:    time.Now().UTC(),
		Record:        record,
		Agency:        agency,
		Route:         route,
	}
}

// Validate checks required fields.
func (e *TripObservedEvent) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "required"}
	}
	if e.Record.ID == "" {
		return &ValidationError{Field: "record.id", Message: "required"}
	}
	if e.Record.Trip.ID == "" {
		return &ValidationError{Field: "record.trip.id", Message: "required"}
	}
	if e.Record.Vehicle.ID == "" {
		return &ValidationError{Field: "record.vehicle.id", Message: "required"}
	}
	return nil
}

// Topic returns the topic the event is published on.
func (e *TripObservedEvent) Topic() string {
	return TopicTripsObserved
}
