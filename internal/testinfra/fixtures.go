// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package testinfra

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// Vehicle describes one vehicle position entity for BuildFeed. Empty
// optional fields are left unset on the wire.
type Vehicle struct {
	EntityID     string
	ID           string
	Label        string
	LicensePlate string
	TripID       string
	RouteID      string
	DirectionID  uint32
	Timestamp    time.Time
}

// BuildFeed serializes a GTFS-Realtime FeedMessage with one entity per
// vehicle.
func BuildFeed(t testing.TB, headerTime time.Time, vehicles ...Vehicle) []byte {
	t.Helper()

	msg := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(headerTime.Unix())),
		},
	}

	for i, v := range vehicles {
		entityID := v.EntityID
		if entityID == "" {
			entityID = fmt.Sprintf("entity-%d", i)
		}

		descriptor := &gtfsrtpb.VehicleDescriptor{Id: proto.String(v.ID)}
		if v.Label != "" {
			descriptor.Label = proto.String(v.Label)
		}
		if v.LicensePlate != "" {
			descriptor.LicensePlate = proto.String(v.LicensePlate)
		}

		position := &gtfsrtpb.VehiclePosition{
			Trip: &gtfsrtpb.TripDescriptor{
				TripId:      proto.String(v.TripID),
				RouteId:     proto.String(v.RouteID),
				DirectionId: proto.Uint32(v.DirectionID),
			},
			Vehicle: descriptor,
		}
		if !v.Timestamp.IsZero() {
			position.Timestamp = proto.Uint64(uint64(v.Timestamp.Unix()))
		}

		msg.Entity = append(msg.Entity, &gtfsrtpb.FeedEntity{
			Id:      proto.String(entityID),
			Vehicle: position,
		})
	}

	data, err := proto.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal feed: %v", err)
	}
	return data
}

// BuildArchive zips files (name to content) in name order.
func BuildArchive(t testing.TB, files map[string]string) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(files[name])); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}
