// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

/*
Package eventprocessor carries "trip observed" notifications from the
realtime pipeline to in-process consumers.

The Bus is an explicit handle created in main, passed to the pipeline and
closed at shutdown. It wraps a Watermill publisher and subscriber:

  - channel (default): Watermill gochannel, in-process only
  - nats (build tag nats): Watermill NATS JetStream, optionally against an
    embedded nats-server

Each TripObservedEvent is published once, after its Record is stored. The
message UUID is the event ID, which NATS also uses as Nats-Msg-Id so that a
broker-side duplicate window drops republished copies.

	bus, err := eventprocessor.NewBus(ctx, cfg.Events)
	if err != nil {
	    return err
	}
	defer bus.Close()

	consumer, err := eventprocessor.NewTripLogger(ctx, bus)
*/
package eventprocessor
