// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package sync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/models"
	"github.com/tomtom215/bustinel/internal/refstore"
	"github.com/tomtom215/bustinel/internal/testinfra"
	"github.com/tomtom215/bustinel/internal/upstream"
)

const (
	agencyHeader = "agency_id,agency_name,agency_url,agency_timezone\n"
	routesHeader = "route_id,agency_id,route_short_name,route_long_name,route_type\n"
)

type harness struct {
	server *testinfra.FeedServer
	store  *refstore.Store
	syncer *Synchronizer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logging.SetLogger(logging.NewTestLogger(io.Discard))

	server := testinfra.NewFeedServer(t)
	client, err := upstream.New(config.UpstreamConfig{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("upstream.New() error = %v", err)
	}
	store, err := refstore.Open(context.Background(), filepath.Join(t.TempDir(), "reference.sqlite3"))
	if err != nil {
		t.Fatalf("refstore.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return &harness{
		server: server,
		store:  store,
		syncer: NewSynchronizer(client, store, server.MetadataURL()),
	}
}

func (h *harness) publish(t *testing.T, modified time.Time, agencies, routes string) {
	t.Helper()
	h.server.SetArchive(testinfra.BuildArchive(t, map[string]string{
		"agency.txt": agencyHeader + agencies,
		"routes.txt": routesHeader + routes,
	}), modified)
}

func (h *harness) agency(t *testing.T, id string) *models.Agency {
	t.Helper()
	a, err := h.store.GetAgency(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAgency(%q) error = %v", id, err)
	}
	return a
}

func (h *harness) route(t *testing.T, id string) *models.Route {
	t.Helper()
	r, err := h.store.GetRoute(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRoute(%q) error = %v", id, err)
	}
	return r
}

func TestNewSynchronizer_InitialLastModified(t *testing.T) {
	s := NewSynchronizer(nil, nil, "http://example.test/gtfs.zip")
	got, err := http.ParseTime(s.LastModified())
	if err != nil {
		t.Fatalf("LastModified() = %q is not an HTTP date: %v", s.LastModified(), err)
	}
	want := time.Now().Add(-30 * 24 * time.Hour)
	if d := got.Sub(want); d < -time.Minute || d > time.Minute {
		t.Errorf("LastModified() = %v, want about %v", got, want)
	}
}

func TestRunOnce_ConditionalRefetch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	modified := time.Now().Add(-time.Hour)

	h.publish(t, modified, "A,Metro,https://metro.example,UTC\n", "R1,A,1,Main St,3\n")
	if err := h.syncer.RunOnce(ctx); err != nil {
		t.Fatalf("first RunOnce() error = %v", err)
	}
	if a := h.agency(t, "A"); a == nil || a.Name != "Metro" {
		t.Fatalf("agency after first run = %+v", a)
	}
	wantLM := modified.UTC().Truncate(time.Second).Format(http.TimeFormat)
	if got := h.syncer.LastModified(); got != wantLM {
		t.Errorf("LastModified() = %q, want %q", got, wantLM)
	}

	// Same modification time: the server answers 304 and nothing changes.
	h.publish(t, modified, "A,Renamed Metro,https://metro.example,UTC\n", "R1,A,1,Main St,3\n")
	if err := h.syncer.RunOnce(ctx); err != nil {
		t.Fatalf("second RunOnce() error = %v", err)
	}
	if a := h.agency(t, "A"); a.Name != "Metro" {
		t.Errorf("agency mutated on 304: %q", a.Name)
	}
	if got := h.syncer.LastModified(); got != wantLM {
		t.Errorf("LastModified() moved on 304: %q", got)
	}

	requests := h.server.RequestsTo(testinfra.MetadataPath)
	if len(requests) != 2 {
		t.Fatalf("metadata requests = %d, want 2", len(requests))
	}
	if got := requests[1].Headers.Get("If-Modified-Since"); got != wantLM {
		t.Errorf("If-Modified-Since = %q, want %q", got, wantLM)
	}
	if requests[1].Status != http.StatusNotModified {
		t.Errorf("second status = %d, want 304", requests[1].Status)
	}
	if got := requests[0].Headers.Get("Accept"); got != upstream.AcceptArchive {
		t.Errorf("Accept = %q", got)
	}

	// A newer snapshot is applied.
	h.publish(t, modified.Add(30*time.Minute), "A,Renamed Metro,https://metro.example,UTC\n", "R1,A,1,Main St,3\n")
	if err := h.syncer.RunOnce(ctx); err != nil {
		t.Fatalf("third RunOnce() error = %v", err)
	}
	if a := h.agency(t, "A"); a.Name != "Renamed Metro" {
		t.Errorf("agency after newer snapshot = %q", a.Name)
	}
}

func TestRunOnce_FetchFailureKeepsLastModified(t *testing.T) {
	h := newHarness(t)
	before := h.syncer.LastModified()

	h.server.FailMetadata(http.StatusInternalServerError)
	err := h.syncer.RunOnce(context.Background())

	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusInternalServerError {
		t.Fatalf("RunOnce() error = %v, want StatusError 500", err)
	}
	if got := h.syncer.LastModified(); got != before {
		t.Errorf("LastModified() advanced after failure: %q", got)
	}
	if n, _ := h.store.CountAgencies(context.Background()); n != 0 {
		t.Errorf("agencies = %d after failed fetch", n)
	}
}

func TestRunOnce_CorruptArchive(t *testing.T) {
	h := newHarness(t)
	before := h.syncer.LastModified()
	h.server.SetArchive([]byte("not a zip"), time.Now())

	if err := h.syncer.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() accepted a corrupt archive")
	}
	if got := h.syncer.LastModified(); got != before {
		t.Errorf("LastModified() advanced after corrupt archive: %q", got)
	}
}

func TestRunOnce_GracefulDefaultAgency(t *testing.T) {
	tests := []struct {
		name      string
		agencies  string
		routes    string
		wantName  string
		wantRoute string
	}{
		{
			name:      "single agency without id",
			agencies:  ",Metro,https://metro.example,UTC\n",
			routes:    "R1,,1,Main St,3\n",
			wantName:  "Metro",
			wantRoute: models.DefaultAgencyID,
		},
		{
			name:      "no agency rows",
			agencies:  "",
			routes:    "R1,,1,Main St,3\n",
			wantName:  "127.0.0.1",
			wantRoute: models.DefaultAgencyID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.publish(t, time.Now(), tt.agencies, tt.routes)

			if err := h.syncer.RunOnce(context.Background()); err != nil {
				t.Fatalf("RunOnce() error = %v", err)
			}

			a := h.agency(t, models.DefaultAgencyID)
			if a == nil {
				t.Fatal("default agency not stored")
			}
			if a.Name != tt.wantName || a.Timezone == "" || a.URL == "" {
				t.Errorf("default agency = %+v, want name %q", a, tt.wantName)
			}
			r := h.route(t, "R1")
			if r == nil || r.AgencyID != tt.wantRoute {
				t.Errorf("route = %+v, want agency %q", r, tt.wantRoute)
			}
		})
	}
}

func TestRunOnce_NoDefaultAgencyWithoutReferences(t *testing.T) {
	h := newHarness(t)
	h.publish(t, time.Now(), "", "")

	if err := h.syncer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if a := h.agency(t, models.DefaultAgencyID); a != nil {
		t.Errorf("default agency created without referencing routes: %+v", a)
	}
}

func TestRunOnce_RejectedRowsDoNotAbort(t *testing.T) {
	h := newHarness(t)
	agencies := "" +
		"A,Metro,https://metro.example,UTC\n" +
		",Orphan,https://orphan.example,UTC\n" + // ambiguous: several agencies
		"B,,https://b.example,UTC\n" + // missing name
		"C,Coast,https://coast.example,Europe/Paris\n"
	routes := "" +
		"R1,A,1,Main St,3\n" +
		",A,2,No id,3\n" + // missing route_id
		"R3,,3,No agency,3\n" + // ambiguous: two agencies stored
		"R4,C,4,Harbour,700\n" +
		"R5,C,5,Odd type,x\n"
	h.publish(t, time.Now(), agencies, routes)

	if err := h.syncer.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	ctx := context.Background()
	if n, _ := h.store.CountAgencies(ctx); n != 2 {
		t.Errorf("agencies = %d, want 2", n)
	}
	if n, _ := h.store.CountRoutes(ctx); n != 3 {
		t.Errorf("routes = %d, want 3", n)
	}
	if h.agency(t, "B") != nil || h.agency(t, models.DefaultAgencyID) != nil {
		t.Error("invalid agency row stored")
	}
	if h.route(t, "R3") != nil {
		t.Error("ambiguous route stored")
	}

	vehicleTypes := map[string]models.VehicleType{
		"R1": models.VehicleTypeBus,
		"R4": models.VehicleTypeBus,
		"R5": models.VehicleTypeUnknown,
	}
	for id, want := range vehicleTypes {
		if r := h.route(t, id); r == nil || r.VehicleType != want {
			t.Errorf("route %s = %+v, want vehicle type %v", id, r, want)
		}
	}
}

func TestRunOnce_MissingRoutesTable(t *testing.T) {
	h := newHarness(t)
	h.server.SetArchive(testinfra.BuildArchive(t, map[string]string{
		"agency.txt": agencyHeader + "A,Metro,https://metro.example,UTC\n",
	}), time.Now())

	if err := h.syncer.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() succeeded without routes.txt")
	}
}
