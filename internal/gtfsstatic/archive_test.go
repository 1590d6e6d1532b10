// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package gtfsstatic

import (
	"errors"
	"testing"

	"github.com/tomtom215/bustinel/internal/testinfra"
)

func TestOpen_NotAZip(t *testing.T) {
	if _, err := Open([]byte("<html>maintenance</html>")); err == nil {
		t.Fatal("Open() accepted a non-zip payload")
	}
}

func TestArchive_Agencies(t *testing.T) {
	data := testinfra.BuildArchive(t, map[string]string{
		"agency.txt": "\xEF\xBB\xBFagency_id, agency_name ,agency_url,agency_timezone,agency_phone\n" +
			"A,Metro Transit,https://metro.example,America/Chicago,555-0100\n" +
			"B, Night Owl ,https://owl.example,America/Chicago\n",
	})
	archive, err := Open(data)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	rows, err := archive.Agencies()
	if err != nil {
		t.Fatalf("Agencies() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	want := []AgencyRow{
		{AgencyID: "A", Name: "Metro Transit", URL: "https://metro.example", Timezone: "America/Chicago", Phone: "555-0100"},
		{AgencyID: "B", Name: "Night Owl", URL: "https://owl.example", Timezone: "America/Chicago"},
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestArchive_Routes(t *testing.T) {
	data := testinfra.BuildArchive(t, map[string]string{
		"feed/routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type,extra\n" +
			"R1,A,1,\"Main St, Downtown\",3,x\n" +
			"R2,,2,Crosstown,bogus,x,overflow\n" +
			"R3\n",
	})
	archive, err := Open(data)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !archive.Has(RoutesFile) {
		t.Fatal("Has(routes.txt) = false for nested table")
	}
	if archive.Has(AgencyFile) {
		t.Error("Has(agency.txt) = true for absent table")
	}

	rows, err := archive.Routes()
	if err != nil {
		t.Fatalf("Routes() error = %v", err)
	}

	tests := []struct {
		name string
		got  RouteRow
		want RouteRow
	}{
		{"quoted comma", rows[0], RouteRow{RouteID: "R1", AgencyID: "A", ShortName: "1", LongName: "Main St, Downtown", RouteType: "3"}},
		{"extra cells dropped", rows[1], RouteRow{RouteID: "R2", ShortName: "2", LongName: "Crosstown", RouteType: "bogus"}},
		{"short row padded", rows[2], RouteRow{RouteID: "R3"}},
	}
	if len(rows) != len(tests) {
		t.Fatalf("got %d rows, want %d", len(rows), len(tests))
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %+v, want %+v", tt.got, tt.want)
			}
		})
	}
}

func TestArchive_PrefersShallowestCopy(t *testing.T) {
	data := testinfra.BuildArchive(t, map[string]string{
		"__MACOSX/old/agency.txt": "agency_name,agency_url,agency_timezone\nStale,https://old.example,UTC\n",
		"agency.txt":              "agency_name,agency_url,agency_timezone\nCurrent,https://new.example,UTC\n",
	})
	archive, err := Open(data)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	rows, err := archive.Agencies()
	if err != nil {
		t.Fatalf("Agencies() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Current" {
		t.Errorf("rows = %+v, want the top-level table", rows)
	}
}

func TestArchive_MissingAndEmptyTables(t *testing.T) {
	data := testinfra.BuildArchive(t, map[string]string{
		"agency.txt": "",
		"stops.txt":  "stop_id\nS1\n",
	})
	archive, err := Open(data)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := archive.Routes(); !errors.Is(err, ErrMissingTable) {
		t.Errorf("Routes() error = %v, want ErrMissingTable", err)
	}

	rows, err := archive.Agencies()
	if err != nil {
		t.Fatalf("Agencies() on empty table error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows from empty table", len(rows))
	}
}
