// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package main is the entry point for the Bustinel recorder.
//
// Bustinel polls an operator's GTFS-Realtime vehicle-position feed, matches
// each vehicle against the GTFS static reference data, and records exactly
// one durable record per distinct vehicle trip. Every new record is
// announced on the event bus.
//
// # Startup
//
//  1. Configuration: environment, optional .env and config file (Koanf v2)
//  2. Stores: reference store (SQLite), record store (DuckDB), fast cache
//  3. Event bus: in-process channel bus, or NATS JetStream with -tags nats
//  4. Supervisor tree: reference synchronizer, realtime pipeline, trip
//     logger and the admin listener
//
// # Signal Handling
//
// SIGINT and SIGTERM request a cooperative stop. Loops finish their current
// run, a realtime batch already past classification is inserted and
// published within REALTIME_DRAIN_TIMEOUT, and the stores are closed last.
//
// # Example Usage
//
//	export FEED_URL=https://transit.example/gtfs-rt/vehicle-positions
//	export METADATA_URL=https://transit.example/gtfs/google_transit.zip
//	export CONTACT=ops@example.org
//	./bustinel
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	metrics.SetAppInfo(version, cfg.Server.Environment)

	logging.Info().
		Str("version", version).
		Str("feed_url", cfg.Upstream.FeedURL).
		Str("metadata_url", cfg.Upstream.MetadataURL).
		Str("cache_backend", cfg.Cache.Backend).
		Str("event_backend", cfg.Events.Backend).
		Msg("Starting Bustinel")

	if err := run(cfg); err != nil {
		logging.Error().Err(err).Msg("Bustinel stopped with error")
		os.Exit(1)
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := buildRunner(ctx, cfg, a)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logging.Info().Msg("Starting supervisor tree")
	errCh := runner.Start(ctx)

	var runErr error
	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case runErr = <-errCh:
		if runErr != nil {
			logging.Error().Err(runErr).Msg("Supervisor tree error")
		}
	}

	timeout := shutdownTimeout(cfg)
	logging.Info().Dur("timeout", timeout).Msg("Stopping services")
	if err := runner.Stop(timeout + gracePeriod); err != nil {
		logging.Error().Err(err).Msg("Supervisor shutdown error")
	}
	return runErr
}
