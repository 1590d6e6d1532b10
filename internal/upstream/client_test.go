// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/bustinel/internal/config"
)

func testConfig(t *testing.T) config.UpstreamConfig {
	t.Helper()
	return config.UpstreamConfig{
		HeadersFile:         filepath.Join(t.TempDir(), "absent.txt"),
		AuthorizationHeader: "Authorization",
		Timeout:             5 * time.Second,
		MaxResponseBytes:    1 << 20,
	}
}

func newTestClient(t *testing.T, cfg config.UpstreamConfig) *Client {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestFetch_SendsIdentifyingHeaders(t *testing.T) {
	headersFile := filepath.Join(t.TempDir(), "headers.txt")
	content := "# operator-issued key\nX-Operator-Key: abc123\nUser-Agent: overridden\n"
	if err := os.WriteFile(headersFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Last-Modified", "Wed, 01 Jul 2026 10:00:00 GMT")
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.HeadersFile = headersFile
	cfg.Contact = "ops@example.org"
	cfg.Authorization = "secret"
	cfg.AuthorizationHeader = "X-Api-Key"
	c := newTestClient(t, cfg)

	resp, err := c.Fetch(context.Background(), server.URL+"/rt", FetchOptions{
		Endpoint: EndpointRealtime,
		Accept:   AcceptRealtime,
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if string(resp.Body) != "payload" {
		t.Errorf("Body = %q", resp.Body)
	}
	if resp.LastModified != "Wed, 01 Jul 2026 10:00:00 GMT" {
		t.Errorf("LastModified = %q", resp.LastModified)
	}

	wantUA := UserAgent + "; contact: ops@example.org"
	checks := map[string]string{
		"User-Agent":     wantUA,
		"From":           "ops@example.org",
		"X-Api-Key":      "secret",
		"X-Operator-Key": "abc123",
		"Accept":         AcceptRealtime,
	}
	for name, want := range checks {
		if v := got.Get(name); v != want {
			t.Errorf("header %s = %q, want %q", name, v, want)
		}
	}
	if got.Get("If-Modified-Since") != "" {
		t.Error("unconditional fetch sent If-Modified-Since")
	}
}

func TestFetch_NoContactOmitsFrom(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(t))
	if _, err := c.Fetch(context.Background(), server.URL, FetchOptions{}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.Get("From") != "" {
		t.Errorf("From = %q, want empty", got.Get("From"))
	}
	if got.Get("User-Agent") != UserAgent {
		t.Errorf("User-Agent = %q", got.Get("User-Agent"))
	}
}

func TestFetch_NotModified(t *testing.T) {
	const since = "Mon, 01 Jun 2026 00:00:00 GMT"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") == since {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte("zip"))
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(t))
	_, err := c.Fetch(context.Background(), server.URL, FetchOptions{
		Endpoint:        EndpointMetadata,
		IfModifiedSince: since,
	})
	if !errors.Is(err, ErrNotModified) {
		t.Fatalf("Fetch() error = %v, want ErrNotModified", err)
	}
}

func TestFetch_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(t))
	_, err := c.Fetch(context.Background(), server.URL, FetchOptions{Endpoint: "status-test"})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Fetch() error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d, want 503", statusErr.Code)
	}
	if !strings.Contains(statusErr.Error(), "503") {
		t.Errorf("Error() = %q", statusErr.Error())
	}
}

func TestFetch_BodyCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.MaxResponseBytes = 1024
	c := newTestClient(t, cfg)

	_, err := c.Fetch(context.Background(), server.URL, FetchOptions{Endpoint: "cap-test"})
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("Fetch() error = %v, want ErrResponseTooLarge", err)
	}

	cfg.MaxResponseBytes = 2048
	c = newTestClient(t, cfg)
	if _, err := c.Fetch(context.Background(), server.URL, FetchOptions{Endpoint: "cap-test-exact"}); err != nil {
		t.Errorf("body exactly at the cap rejected: %v", err)
	}
}

func TestFetch_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(t))
	for i := 0; i < 5; i++ {
		_, _ = c.Fetch(context.Background(), server.URL, FetchOptions{Endpoint: "breaker-test"})
	}

	_, err := c.Fetch(context.Background(), server.URL, FetchOptions{Endpoint: "breaker-test"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Fetch() error = %v, want gobreaker.ErrOpenState", err)
	}
	if got := hits.Load(); got != 5 {
		t.Errorf("server hit %d times, want 5", got)
	}
}

func TestFetch_NotModifiedDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(t))
	for i := 0; i < 10; i++ {
		_, err := c.Fetch(context.Background(), server.URL, FetchOptions{
			Endpoint:        "not-modified-test",
			IfModifiedSince: "Mon, 01 Jun 2026 00:00:00 GMT",
		})
		if !errors.Is(err, ErrNotModified) {
			t.Fatalf("attempt %d: error = %v, want ErrNotModified", i, err)
		}
	}
}

func TestFetch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	c := newTestClient(t, testConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, server.URL, FetchOptions{Endpoint: "cancel-test"})
	if err == nil {
		t.Fatal("Fetch() = nil error after context deadline")
	}
}

func TestFetch_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	cfg := testConfig(t)
	cfg.RateLimit = 10 // one request per 100ms
	c := newTestClient(t, cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Fetch(context.Background(), server.URL, FetchOptions{Endpoint: "rate-test"}); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
		t.Errorf("3 requests took %v, want rate limiting to space them", elapsed)
	}
}
