// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/bustinel/internal/cache"
	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/database"
	"github.com/tomtom215/bustinel/internal/eventprocessor"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/realtime"
	"github.com/tomtom215/bustinel/internal/refstore"
	"github.com/tomtom215/bustinel/internal/upstream"
	"github.com/tomtom215/bustinel/internal/wal"
)

// app holds the long-lived handles shared by the services.
type app struct {
	client  *upstream.Client
	refs    *refstore.Store
	records *database.DB
	cache   cache.Store
	bus     *eventprocessor.Bus
	outbox  *wal.BadgerWAL // nil unless the outbox is enabled

	closers []func() error
}

// openApp opens every store and the event bus. On failure everything
// opened so far is closed again.
func openApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.client, err = upstream.New(cfg.Upstream); err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}

	if a.refs, err = refstore.Open(ctx, cfg.Reference.Path); err != nil {
		return nil, fmt.Errorf("open reference store: %w", err)
	}
	a.closers = append(a.closers, a.refs.Close)

	if a.records, err = database.New(&cfg.Database); err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	a.closers = append(a.closers, a.records.Close)

	if a.cache, err = cache.New(cfg.Cache); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	a.closers = append(a.closers, a.cache.Close)

	if a.bus, err = eventprocessor.NewBus(ctx, cfg.Events); err != nil {
		return nil, fmt.Errorf("create event bus: %w", err)
	}
	a.closers = append(a.closers, a.bus.Close)

	if cfg.Events.Outbox.Enabled {
		if a.outbox, err = wal.Open(cfg.Events.Outbox); err != nil {
			return nil, fmt.Errorf("open event outbox: %w", err)
		}
		a.closers = append(a.closers, a.outbox.Close)
	}

	return a, nil
}

// Close releases resources in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Error().Err(err).Msg("Error during shutdown")
		}
	}
	a.closers = nil
}

// publisher is what the pipeline publishes through: the outbox when
// enabled, the bus otherwise.
func (a *app) publisher() realtime.Publisher {
	if a.outbox != nil {
		return wal.NewOutbox(a.outbox, a.bus)
	}
	return a.bus
}
