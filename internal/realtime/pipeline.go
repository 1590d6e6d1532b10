// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package realtime

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/bustinel/internal/cache"
	"github.com/tomtom215/bustinel/internal/eventprocessor"
	"github.com/tomtom215/bustinel/internal/gtfsrt"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
	"github.com/tomtom215/bustinel/internal/models"
	"github.com/tomtom215/bustinel/internal/upstream"
)

// ServiceName labels the pipeline in logs and metrics.
const ServiceName = "realtime-pipeline"

// DefaultCacheTTL is how long a fingerprint stays in the fast cache.
const DefaultCacheTTL = 24 * time.Hour

// Fetcher performs upstream requests. Implemented by *upstream.Client.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts upstream.FetchOptions) (*upstream.Response, error)
}

// ReferenceReader resolves routes and agencies. Implemented by
// *refstore.Store.
type ReferenceReader interface {
	GetRoute(ctx context.Context, routeID string) (*models.Route, error)
	GetAgency(ctx context.Context, id string) (*models.Agency, error)
}

// RecordStore is the durable record store. Implemented by *database.DB.
type RecordStore interface {
	FindOne(ctx context.Context, key models.NaturalKey) (*models.Record, error)
	InsertMany(ctx context.Context, records []models.Record) ([]models.Record, error)
}

// Publisher announces newly inserted records. Implemented by
// *eventprocessor.Bus.
type Publisher interface {
	Publish(ctx context.Context, event *eventprocessor.TripObservedEvent) error
}

// Options configures a Pipeline. Zero values take defaults.
type Options struct {
	FeedURL string
	// Workers bounds concurrent entity processing. Default: NumCPU.
	Workers int
	// DrainTimeout bounds the insert and publish tail. Default: 30s.
	DrainTimeout time.Duration
	CachePrefix  string
	// CacheTTL defaults to DefaultCacheTTL.
	CacheTTL time.Duration
}

// Pipeline is the realtime ingestion pipeline.
type Pipeline struct {
	fetcher Fetcher
	refs    ReferenceReader
	records RecordStore
	cache   cache.Store
	bus     Publisher
	opts    Options
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(fetcher Fetcher, refs ReferenceReader, records RecordStore, fast cache.Store, bus Publisher, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 30 * time.Second
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CachePrefix == "" {
		opts.CachePrefix = "bustinel"
	}
	return &Pipeline{
		fetcher: fetcher,
		refs:    refs,
		records: records,
		cache:   fast,
		bus:     bus,
		opts:    opts,
	}
}

// RunOnce performs one run. It has the services.RunFunc signature.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	_, err := p.Run(ctx)
	return err
}

// Run performs one run and returns its summary. Entity-level failures are
// counted, not returned; an error means the feed could not be fetched or
// decoded, or the batch insert failed.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	resp, err := p.fetcher.Fetch(ctx, p.opts.FeedURL, upstream.FetchOptions{
		Endpoint: upstream.EndpointRealtime,
		Accept:   upstream.AcceptRealtime,
	})
	if err != nil {
		metrics.RecordRun(ServiceName, time.Since(start), "error")
		return summary, fmt.Errorf("fetch realtime feed: %w", err)
	}

	feed, err := gtfsrt.Decode(resp.Body)
	if err != nil {
		metrics.RecordError(ServiceName, metrics.CategoryDecode)
		metrics.RecordRun(ServiceName, time.Since(start), "error")
		return summary, err
	}
	summary.Entities = len(feed.Vehicles)

	results := make([]entityResult, len(feed.Vehicles))
	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i := range feed.Vehicles {
		g.Go(func() error {
			results[i] = p.process(ctx, feed.Vehicles[i])
			return nil
		})
	}
	_ = g.Wait()

	var staged []entityResult
	for _, r := range results {
		summary.add(r.outcome)
		metrics.ObservationsTotal.WithLabelValues(r.outcome.String()).Inc()
		if r.outcome == OutcomeNew {
			staged = append(staged, r)
		}
	}

	// The tail outlives a stop request so a batch is never half-applied.
	tailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.DrainTimeout)
	defer cancel()

	if err := p.commit(tailCtx, staged, &summary); err != nil {
		metrics.RecordRun(ServiceName, time.Since(start), "error")
		return summary, err
	}

	logging.Ctx(ctx).Info().
		Int("entities", summary.Entities).
		Int("cached", summary.Cached).
		Int("persisted", summary.Persisted).
		Int("new", summary.New).
		Int("inserted", summary.Inserted).
		Int("published", summary.Published).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Dur("duration", time.Since(start)).
		Msg("Realtime feed processed")
	metrics.RecordRun(ServiceName, time.Since(start), "ok")
	return summary, nil
}

// commit inserts the staged records, then publishes and caches exactly the
// ones the store accepted.
func (p *Pipeline) commit(ctx context.Context, staged []entityResult, summary *Summary) error {
	if len(staged) == 0 {
		return nil
	}

	batch := make([]models.Record, len(staged))
	byID := make(map[string]entityResult, len(staged))
	for i, s := range staged {
		batch[i] = s.record
		byID[s.record.ID] = s
	}

	inserted, err := p.records.InsertMany(ctx, batch)
	if err != nil {
		metrics.RecordError(ServiceName, metrics.CategoryPersistence)
		return fmt.Errorf("insert %d records: %w", len(batch), err)
	}
	summary.Inserted = len(inserted)
	metrics.RecordsInserted.Add(float64(len(inserted)))
	if conflicts := len(batch) - len(inserted); conflicts > 0 {
		metrics.RecordConflicts.Add(float64(conflicts))
		logging.Ctx(ctx).Debug().Int("conflicts", conflicts).Msg("Staged records already stored")
	}

	for i := range inserted {
		record := inserted[i]
		s := byID[record.ID]

		event := eventprocessor.NewTripObservedEvent(record, s.agency, s.route)
		if err := p.bus.Publish(ctx, event); err != nil {
			metrics.RecordError(ServiceName, metrics.CategoryPublish)
			logging.Ctx(ctx).Error().Err(err).
				Str("record_id", record.ID).
				Str("trip", record.Trip.ID).
				Msg("Failed to publish trip event")
		} else {
			summary.Published++
		}

		if err := p.cache.Set(ctx, s.cacheKey, record.ID, p.opts.CacheTTL); err != nil {
			metrics.RecordError(ServiceName, metrics.CategoryCache)
			logging.Ctx(ctx).Warn().Err(err).Str("record_id", record.ID).Msg("Failed to cache record fingerprint")
		}
	}
	return nil
}
