// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tomtom215/bustinel/internal/gtfsstatic"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
	"github.com/tomtom215/bustinel/internal/models"
	"github.com/tomtom215/bustinel/internal/upstream"
)

// ServiceName labels the synchronizer in logs and metrics.
const ServiceName = "reference-sync"

// initialLookback is how far back the first If-Modified-Since points.
const initialLookback = 30 * 24 * time.Hour

// Fetcher performs conditional upstream requests. Implemented by
// *upstream.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts upstream.FetchOptions) (*upstream.Response, error)
}

// ReferenceStore is the subset of *refstore.Store the synchronizer writes to.
type ReferenceStore interface {
	UpsertAgency(ctx context.Context, a models.Agency) error
	UpsertRoute(ctx context.Context, r models.Route) error
	GetAgency(ctx context.Context, id string) (*models.Agency, error)
	CountAgencies(ctx context.Context) (int, error)
}

// Synchronizer refreshes reference data from the GTFS static snapshot.
// RunOnce is not meant to be called concurrently; the mutex only guards
// lastModified for readers such as health checks.
type Synchronizer struct {
	fetcher     Fetcher
	store       ReferenceStore
	metadataURL string

	mu           sync.RWMutex
	lastModified string
}

// NewSynchronizer creates a synchronizer for the snapshot at metadataURL.
func NewSynchronizer(fetcher Fetcher, store ReferenceStore, metadataURL string) *Synchronizer {
	return &Synchronizer{
		fetcher:      fetcher,
		store:        store,
		metadataURL:  metadataURL,
		lastModified: time.Now().UTC().Add(-initialLookback).Format(http.TimeFormat),
	}
}

// LastModified returns the value sent as If-Modified-Since on the next run.
func (s *Synchronizer) LastModified() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastModified
}

func (s *Synchronizer) setLastModified(v string) {
	s.mu.Lock()
	s.lastModified = v
	s.mu.Unlock()
}

// RunOnce performs one synchronization pass. It returns an error only when
// the snapshot could not be fetched or opened; rejected rows are reported
// through logs and metrics.
func (s *Synchronizer) RunOnce(ctx context.Context) error {
	start := time.Now()
	log := logging.Ctx(ctx)
	since := s.LastModified()

	resp, err := s.fetcher.Fetch(ctx, s.metadataURL, upstream.FetchOptions{
		Endpoint:        upstream.EndpointMetadata,
		Accept:          upstream.AcceptArchive,
		IfModifiedSince: since,
	})
	if errors.Is(err, upstream.ErrNotModified) {
		log.Info().Str("since", since).Msg("Reference data not modified")
		metrics.RecordRun(ServiceName, time.Since(start), "not_modified")
		return nil
	}
	if err != nil {
		metrics.RecordRun(ServiceName, time.Since(start), "error")
		return fmt.Errorf("fetch reference snapshot: %w", err)
	}

	archive, err := gtfsstatic.Open(resp.Body)
	if err != nil {
		metrics.RecordError(ServiceName, metrics.CategoryDecode)
		metrics.RecordRun(ServiceName, time.Since(start), "error")
		return err
	}

	result, err := s.apply(ctx, archive)
	if err != nil {
		metrics.RecordError(ServiceName, metrics.CategoryDecode)
		metrics.RecordRun(ServiceName, time.Since(start), "error")
		return err
	}

	if resp.LastModified != "" {
		s.setLastModified(resp.LastModified)
	}

	log.Info().
		Int("agencies_upserted", result.agencies.upserted).
		Int("agencies_rejected", result.agencies.rejected).
		Int("routes_upserted", result.routes.upserted).
		Int("routes_rejected", result.routes.rejected).
		Str("last_modified", s.LastModified()).
		Dur("duration", time.Since(start)).
		Msg("Reference data synchronized")
	metrics.RecordRun(ServiceName, time.Since(start), "ok")
	return nil
}

// defaultAgency builds the agency attached to single-operator snapshots
// that carry no agency rows at all. Its identity comes from the snapshot
// host.
func (s *Synchronizer) defaultAgency() models.Agency {
	name, site := "Default agency", "http://localhost"
	if u, err := url.Parse(s.metadataURL); err == nil && u.Host != "" {
		name = u.Hostname()
		site = u.Scheme + "://" + u.Host
	}
	return models.Agency{
		ID:       models.DefaultAgencyID,
		Name:     name,
		URL:      site,
		Timezone: "UTC",
	}
}
