// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package main

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/testinfra"
)

func TestShutdownTimeout(t *testing.T) {
	tests := []struct {
		drain time.Duration
		want  time.Duration
	}{
		{0, 10 * time.Second},
		{2 * time.Second, 10 * time.Second},
		{30 * time.Second, 35 * time.Second},
	}
	for _, tt := range tests {
		cfg := &config.Config{Realtime: config.RealtimeConfig{DrainTimeout: tt.drain}}
		if got := shutdownTimeout(cfg); got != tt.want {
			t.Errorf("shutdownTimeout(drain=%v) = %v, want %v", tt.drain, got, tt.want)
		}
	}
}

func TestAdminAddr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 9090, "127.0.0.1:9090"},
		{"", 9090, ":9090"},
		{"::1", 8080, "[::1]:8080"},
	}
	for _, tt := range tests {
		if got := adminAddr(config.ServerConfig{Host: tt.host, Port: tt.port}); got != tt.want {
			t.Errorf("adminAddr(%q, %d) = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
}

// TestRunnerEndToEnd starts the whole tree against a fake operator and
// stops it again.
func TestRunnerEndToEnd(t *testing.T) {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
	dir := t.TempDir()

	server := testinfra.NewFeedServer(t)
	server.SetArchive(testinfra.BuildArchive(t, map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\nA,Metro,https://metro.example,UTC\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\nR1,A,1,Main St,3\n",
	}), time.Now())
	server.SetFeed(testinfra.BuildFeed(t, time.Now(),
		testinfra.Vehicle{ID: "v1", TripID: "t1", RouteID: "R1"},
	))

	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			FeedURL:     server.FeedURL(),
			MetadataURL: server.MetadataURL(),
			Timeout:     5 * time.Second,
		},
		Realtime:  config.RealtimeConfig{Interval: 50 * time.Millisecond, Workers: 2, DrainTimeout: time.Second},
		Reference: config.ReferenceConfig{Interval: time.Hour, Path: filepath.Join(dir, "reference.sqlite3")},
		Database:  config.DatabaseConfig{Path: filepath.Join(dir, "records.duckdb"), MaxMemory: "256MB", Threads: 1},
		Cache:     config.CacheConfig{Backend: "memory", Prefix: "e2e", TTL: time.Hour},
		Events: config.EventsConfig{
			Backend: "channel",
			Outbox: config.OutboxConfig{
				Enabled:       true,
				Path:          filepath.Join(dir, "outbox"),
				RetryInterval: time.Second,
				RetryBackoff:  time.Second,
				MaxRetries:    3,
				EntryTTL:      time.Hour,
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cfg)
	if err != nil {
		t.Fatalf("openApp() error = %v", err)
	}
	defer a.Close()

	runner, err := buildRunner(ctx, cfg, a)
	if err != nil {
		t.Fatalf("buildRunner() error = %v", err)
	}
	runner.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	var n int64
	for time.Now().Before(deadline) {
		if n, _ = a.records.Count(ctx); n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
	time.Sleep(150 * time.Millisecond) // a few more polls that must dedupe

	if err := runner.Stop(shutdownTimeout(cfg)); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if pending, _ := a.outbox.PendingCount(); pending != 0 {
		t.Errorf("outbox pending = %d, want 0", pending)
	}
	if n, _ = a.records.Count(ctx); n != 1 {
		t.Errorf("records after repeated polls = %d, want 1", n)
	}
	if got := len(server.RequestsTo(testinfra.FeedPath)); got < 2 {
		t.Errorf("feed requests = %d, want repeated polling", got)
	}
	if reqs := server.RequestsTo(testinfra.MetadataPath); len(reqs) != 1 || reqs[0].Status != http.StatusOK {
		t.Errorf("metadata requests = %+v", reqs)
	}
}
