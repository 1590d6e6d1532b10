// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/bustinel/internal/api"
	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/eventprocessor"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/realtime"
	"github.com/tomtom215/bustinel/internal/supervisor"
	"github.com/tomtom215/bustinel/internal/supervisor/services"
	refsync "github.com/tomtom215/bustinel/internal/sync"
	"github.com/tomtom215/bustinel/internal/wal"
)

const (
	minShutdownTimeout = 10 * time.Second
	// gracePeriod is added on top of the per-service timeout when waiting
	// for the whole tree.
	gracePeriod = 5 * time.Second
)

// shutdownTimeout is the per-service stop budget. It covers the realtime
// drain so a batch tail is never cut off by the supervisor.
func shutdownTimeout(cfg *config.Config) time.Duration {
	timeout := cfg.Realtime.DrainTimeout + gracePeriod
	if timeout < minShutdownTimeout {
		timeout = minShutdownTimeout
	}
	return timeout
}

func adminAddr(cfg config.ServerConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// buildRunner assembles the supervisor tree:
//
//	reference-layer: reference-sync
//	ingest-layer:    realtime-pipeline, event-outbox (when enabled), trip-logger
//	api-layer:       admin-http (when enabled)
func buildRunner(ctx context.Context, cfg *config.Config, a *app) (*supervisor.Runner, error) {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  shutdownTimeout(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}
	runner := supervisor.NewRunner(tree)

	syncer := refsync.NewSynchronizer(a.client, a.refs, cfg.Upstream.MetadataURL)
	runner.AddReference(services.NewLoopService(refsync.ServiceName, cfg.Reference.Interval, syncer.RunOnce))

	pipeline := realtime.NewPipeline(a.client, a.refs, a.records, a.cache, a.publisher(), realtime.Options{
		FeedURL:      cfg.Upstream.FeedURL,
		Workers:      cfg.Realtime.Workers,
		DrainTimeout: cfg.Realtime.DrainTimeout,
		CachePrefix:  cfg.Cache.Prefix,
		CacheTTL:     cfg.Cache.TTL,
	})
	runner.AddIngest(services.NewLoopService(realtime.ServiceName, cfg.Realtime.Interval, pipeline.RunOnce))

	if a.outbox != nil {
		retry := wal.NewRetryLoop(a.outbox, a.bus, cfg.Events.Outbox)
		runner.AddIngest(services.NewLoopService(wal.RetryServiceName, cfg.Events.Outbox.RetryInterval, retry.RunOnce))
	}

	// The subscription is bound to ctx, not to the service, so a restarted
	// trip logger keeps receiving.
	tripLogger, err := eventprocessor.NewTripLogger(ctx, a.bus)
	if err != nil {
		return nil, fmt.Errorf("create trip logger: %w", err)
	}
	runner.AddIngest(tripLogger)

	if cfg.Server.Enabled {
		apiConfig := api.DefaultConfig()
		apiConfig.Version = version
		apiConfig.CORSOrigins = cfg.Server.CORSOrigins
		router := api.NewRouter(apiConfig,
			api.Check{Name: "records", Ping: a.records.Ping},
			api.Check{Name: "reference", Ping: a.refs.Ping},
		)
		server := &http.Server{
			Addr:              adminAddr(cfg.Server),
			Handler:           router.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.Timeout,
			WriteTimeout:      cfg.Server.Timeout,
		}
		runner.AddAPI(services.NewHTTPServerService(server, cfg.Server.Timeout))
		logging.Info().Str("addr", server.Addr).Msg("Admin listener enabled")
	}

	return runner, nil
}
