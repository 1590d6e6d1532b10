// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

/*
Package supervisor runs Bustinel's long-lived services under suture v4.

# Overview

Services are organized into three layers for failure isolation:

	RootSupervisor ("bustinel")
	├── ReferenceSupervisor ("reference-layer")
	│   └── reference-sync (LoopService)
	├── IngestSupervisor ("ingest-layer")
	│   ├── realtime-pipeline (LoopService)
	│   └── trip-logger (event consumer)
	└── APISupervisor ("api-layer")
	    └── admin-http (HTTPServerService, if HTTP_ENABLED)

# Runner

Runner is the handle main uses:

	tree, _ := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg)
	runner := supervisor.NewRunner(tree)
	runner.AddReference(services.NewLoopService("reference-sync", interval, syncer.RunOnce))
	errCh := runner.Start(ctx)
	...
	if err := runner.Stop(timeout); err != nil {
	    logging.Warn().Err(err).Msg("Unclean shutdown")
	}

Stop sets the stop flag of every registered LoopService, cancels the tree
context, then waits for all services to return. A LoopService only returns
between runs, so Stop never returns while a synchronizer or pipeline run is
still writing.

# Restarts

Loop services never restart: a panic in a run is recovered and the service
returns suture.ErrDoNotRestart. The admin listener keeps suture's normal
restart with backoff, controlled by TreeConfig:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# What Is NOT Supervised

The stores (DuckDB, SQLite, badger) and the event bus are plain handles
owned by main and closed after the tree has stopped.
*/
package supervisor
