// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package wal provides the durable event outbox, a write-ahead log on
// BadgerDB that sits between the realtime pipeline and the event bus.
//
// # Architecture
//
//	TripObservedEvent → WAL Write (fsync) → Bus Publish → WAL Confirm
//	                                            ↓ (on failure)
//	                                      Entry kept for the retry loop
//
// A record is inserted before its event is written, so a crash between the
// two still loses that one event. Every later failure is recovered: the
// entry survives restarts and bus outages and is replayed with the original
// event ID, which JetStream uses for deduplication.
//
// # Components
//
//   - BadgerWAL: pending entries keyed by entry ID, with Badger TTLs
//   - Outbox: the write, publish, confirm path used by the pipeline
//   - RetryLoop: replays pending entries with exponential backoff; run it
//     under the supervisor with services.NewLoopService
//
// # Usage
//
//	w, err := wal.Open(cfg.Events.Outbox)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	outbox := wal.NewOutbox(w, bus)
//	pipeline := realtime.NewPipeline(client, refs, records, fast, outbox, opts)
//
//	retry := wal.NewRetryLoop(w, bus, cfg.Events.Outbox)
//	runner.AddIngest(services.NewLoopService(wal.RetryServiceName,
//	    cfg.Events.Outbox.RetryInterval, retry.RunOnce))
//
// Pending entries left by a previous process are delivered by the first
// retry run, which LoopService starts immediately.
package wal
