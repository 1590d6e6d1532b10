// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package testinfra

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Paths served by FeedServer.
const (
	FeedPath     = "/gtfs-rt/vehicle-positions"
	MetadataPath = "/gtfs/google_transit.zip"
)

// FeedRequest is one request seen by FeedServer.
type FeedRequest struct {
	Path    string
	Headers http.Header
	Status  int
}

// FeedServer is a fake transit operator.
type FeedServer struct {
	Server *httptest.Server

	mu             sync.Mutex
	feed           []byte
	feedStatus     int
	archive        []byte
	archiveMod     time.Time
	metadataStatus int
	requests       []FeedRequest
}

// NewFeedServer starts a server that is closed when t finishes. Until
// content is set both endpoints answer 404.
func NewFeedServer(t testing.TB) *FeedServer {
	t.Helper()

	fs := &FeedServer{}
	mux := http.NewServeMux()
	mux.HandleFunc(FeedPath, fs.serveFeed)
	mux.HandleFunc(MetadataPath, fs.serveArchive)
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Server.Close)
	return fs
}

// FeedURL returns the realtime feed URL.
func (fs *FeedServer) FeedURL() string { return fs.Server.URL + FeedPath }

// MetadataURL returns the static archive URL.
func (fs *FeedServer) MetadataURL() string { return fs.Server.URL + MetadataPath }

// SetFeed replaces the realtime payload.
func (fs *FeedServer) SetFeed(data []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.feed = data
}

// SetArchive replaces the static archive and its modification time.
func (fs *FeedServer) SetArchive(data []byte, modified time.Time) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.archive = data
	fs.archiveMod = modified.UTC().Truncate(time.Second)
}

// FailFeed makes the feed endpoint answer status. 0 restores normal serving.
func (fs *FeedServer) FailFeed(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.feedStatus = status
}

// FailMetadata makes the archive endpoint answer status. 0 restores normal
// serving.
func (fs *FeedServer) FailMetadata(status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.metadataStatus = status
}

// Requests returns a copy of the requests seen so far.
func (fs *FeedServer) Requests() []FeedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]FeedRequest, len(fs.requests))
	copy(out, fs.requests)
	return out
}

// RequestsTo returns the requests seen for path.
func (fs *FeedServer) RequestsTo(path string) []FeedRequest {
	var out []FeedRequest
	for _, r := range fs.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (fs *FeedServer) record(r *http.Request, status int) {
	fs.requests = append(fs.requests, FeedRequest{Path: r.URL.Path, Headers: r.Header.Clone(), Status: status})
}

func (fs *FeedServer) serveFeed(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	switch {
	case fs.feedStatus != 0:
		fs.record(r, fs.feedStatus)
		w.WriteHeader(fs.feedStatus)
	case fs.feed == nil:
		fs.record(r, http.StatusNotFound)
		http.NotFound(w, r)
	default:
		fs.record(r, http.StatusOK)
		w.Header().Set("Content-Type", "application/x-protobuf")
		_, _ = w.Write(fs.feed)
	}
}

func (fs *FeedServer) serveArchive(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.metadataStatus != 0 {
		fs.record(r, fs.metadataStatus)
		w.WriteHeader(fs.metadataStatus)
		return
	}
	if fs.archive == nil {
		fs.record(r, http.StatusNotFound)
		http.NotFound(w, r)
		return
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" {
		if since, err := http.ParseTime(ims); err == nil && !fs.archiveMod.After(since) {
			fs.record(r, http.StatusNotModified)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	fs.record(r, http.StatusOK)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Last-Modified", fs.archiveMod.Format(http.TimeFormat))
	_, _ = w.Write(fs.archive)
}
