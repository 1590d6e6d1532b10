// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package testinfra

import (
	"io"
	"net/http"
	"testing"
	"time"
)

func get(t *testing.T, url string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestFeedServer_Archive(t *testing.T) {
	srv := NewFeedServer(t)

	if resp, _ := get(t, srv.MetadataURL(), nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("empty server status = %d, want 404", resp.StatusCode)
	}

	modified := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	archive := BuildArchive(t, map[string]string{"agency.txt": "agency_name\nMetro\n"})
	srv.SetArchive(archive, modified)

	resp, body := get(t, srv.MetadataURL(), nil)
	if resp.StatusCode != http.StatusOK || len(body) != len(archive) {
		t.Fatalf("status = %d, %d bytes", resp.StatusCode, len(body))
	}
	if lm := resp.Header.Get("Last-Modified"); lm != modified.Format(http.TimeFormat) {
		t.Errorf("Last-Modified = %q", lm)
	}

	tests := []struct {
		name  string
		since time.Time
		want  int
	}{
		{"older copy", modified.Add(-time.Hour), http.StatusOK},
		{"same copy", modified, http.StatusNotModified},
		{"newer copy", modified.Add(time.Hour), http.StatusNotModified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{"If-Modified-Since": {tt.since.Format(http.TimeFormat)}}
			if resp, _ := get(t, srv.MetadataURL(), h); resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	srv.FailMetadata(http.StatusInternalServerError)
	if resp, _ := get(t, srv.MetadataURL(), nil); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("failing status = %d, want 500", resp.StatusCode)
	}

	if got := len(srv.RequestsTo(MetadataPath)); got != 6 {
		t.Errorf("recorded %d metadata requests, want 6", got)
	}
}

func TestFeedServer_Feed(t *testing.T) {
	srv := NewFeedServer(t)
	feed := BuildFeed(t, time.Now(), Vehicle{ID: "v1", TripID: "t1", RouteID: "R1"})
	srv.SetFeed(feed)

	resp, body := get(t, srv.FeedURL(), http.Header{"User-Agent": {"test"}})
	if resp.StatusCode != http.StatusOK || string(body) != string(feed) {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	srv.FailFeed(http.StatusBadGateway)
	if resp, _ := get(t, srv.FeedURL(), nil); resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}

	reqs := srv.RequestsTo(FeedPath)
	if len(reqs) != 2 || reqs[0].Headers.Get("User-Agent") != "test" {
		t.Errorf("requests = %+v", reqs)
	}
}
