// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("test-run", "ok"))

	RecordRun("test-run", 150*time.Millisecond, "ok")

	if got := testutil.ToFloat64(RunsTotal.WithLabelValues("test-run", "ok")); got != before+1 {
		t.Errorf("runs_total = %v, want %v", got, before+1)
	}
	if testutil.ToFloat64(LastSuccessfulRun.WithLabelValues("test-run")) == 0 {
		t.Error("last successful run not set")
	}
}

func TestRecordRunErrorKeepsLastSuccess(t *testing.T) {
	LastSuccessfulRun.WithLabelValues("test-err").Set(42)

	RecordRun("test-err", time.Second, "error")

	if got := testutil.ToFloat64(LastSuccessfulRun.WithLabelValues("test-err")); got != 42 {
		t.Errorf("last success = %v, want 42", got)
	}
}

func TestRecordUpstreamRequest(t *testing.T) {
	tests := []struct {
		name   string
		status int
		label  string
	}{
		{"ok", 200, "200"},
		{"not modified", 304, "304"},
		{"transport error", 0, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := UpstreamRequests.WithLabelValues("test-feed", tt.label)
			before := testutil.ToFloat64(c)
			RecordUpstreamRequest("test-feed", tt.status, 10*time.Millisecond, 2048)
			if got := testutil.ToFloat64(c); got != before+1 {
				t.Errorf("counter = %v, want %v", got, before+1)
			}
		})
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheHits.WithLabelValues("test"))
	misses := testutil.ToFloat64(CacheMisses.WithLabelValues("test"))

	RecordCacheLookup("test", true)
	RecordCacheLookup("test", false)
	RecordCacheLookup("test", false)

	if got := testutil.ToFloat64(CacheHits.WithLabelValues("test")); got != hits+1 {
		t.Errorf("hits = %v, want %v", got, hits+1)
	}
	if got := testutil.ToFloat64(CacheMisses.WithLabelValues("test")); got != misses+2 {
		t.Errorf("misses = %v, want %v", got, misses+2)
	}
}

func TestRecordAdminRequest(t *testing.T) {
	c := AdminRequests.WithLabelValues("GET", "/readyz", "503")
	before := testutil.ToFloat64(c)

	RecordAdminRequest("GET", "/readyz", "503", 5*time.Millisecond)

	if got := testutil.ToFloat64(c); got != before+1 {
		t.Errorf("admin requests = %v, want %v", got, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(AdminActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(AdminActiveRequests); got != before+1 {
		t.Errorf("active = %v during request, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(AdminActiveRequests); got != before {
		t.Errorf("active = %v after request, want %v", got, before)
	}
}

func TestRecordOutboxDelivery(t *testing.T) {
	for _, result := range []string{"published", "failed", "expired", "abandoned"} {
		t.Run(result, func(t *testing.T) {
			c := OutboxDeliveries.WithLabelValues(result)
			before := testutil.ToFloat64(c)
			RecordOutboxDelivery(result)
			if got := testutil.ToFloat64(c); got != before+1 {
				t.Errorf("%s = %v, want %v", result, got, before+1)
			}
		})
	}
}
