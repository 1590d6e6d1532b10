// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package gtfsrt decodes GTFS-Realtime vehicle position feeds.
package gtfsrt

import (
	"fmt"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// VehiclePosition is the subset of a GTFS-RT VehiclePosition entity that
// the pipeline needs. Missing optional fields are empty strings or zero.
type VehiclePosition struct {
	EntityID     string
	VehicleID    string
	Label        string
	LicensePlate string
	TripID       string
	RouteID      string
	DirectionID  uint32
	// Timestamp is the vehicle's own timestamp, or the feed header
	// timestamp when the vehicle has none. Always UTC.
	Timestamp time.Time
}

// Feed is a decoded feed message.
type Feed struct {
	Timestamp time.Time
	Vehicles  []VehiclePosition
}

// Decode parses a serialized FeedMessage. Entities that carry no vehicle
// position are skipped.
func Decode(data []byte) (*Feed, error) {
	var msg gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode feed message: %w", err)
	}

	feed := &Feed{
		Vehicles: make([]VehiclePosition, 0, len(msg.GetEntity())),
	}
	if ts := msg.GetHeader().GetTimestamp(); ts > 0 {
		feed.Timestamp = time.Unix(int64(ts), 0).UTC()
	}

	for _, entity := range msg.GetEntity() {
		vp := entity.GetVehicle()
		if vp == nil {
			continue
		}

		pos := VehiclePosition{
			EntityID:     entity.GetId(),
			VehicleID:    vp.GetVehicle().GetId(),
			Label:        vp.GetVehicle().GetLabel(),
			LicensePlate: vp.GetVehicle().GetLicensePlate(),
			TripID:       vp.GetTrip().GetTripId(),
			RouteID:      vp.GetTrip().GetRouteId(),
			DirectionID:  vp.GetTrip().GetDirectionId(),
			Timestamp:    feed.Timestamp,
		}
		if ts := vp.GetTimestamp(); ts > 0 {
			pos.Timestamp = time.Unix(int64(ts), 0).UTC()
		}
		feed.Vehicles = append(feed.Vehicles, pos)
	}

	return feed, nil
}
