// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

//go:build integration && nats

package eventprocessor

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/testinfra"
)

func TestNATSBus_ExternalServer(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testinfra.NewNATSContainer(ctx)
	if err != nil {
		t.Fatalf("start NATS container: %v", err)
	}
	testinfra.CleanupContainer(t, container)

	bus, err := NewNATSBus(ctx, config.NATSConfig{URL: container.URL, StreamName: "BUSTINEL_IT"})
	if err != nil {
		t.Fatalf("NewNATSBus() error = %v", err)
	}
	defer bus.Close()

	got := make(chan *TripObservedEvent, 1)
	tl, err := NewTripLogger(ctx, bus, func(_ context.Context, e *TripObservedEvent) error {
		got <- e
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = tl.Serve(ctx) }()

	event := testEvent()
	if err := bus.Publish(ctx, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	// A duplicate publish of the same event ID is dropped by the stream.
	if err := bus.Publish(ctx, event); err != nil {
		t.Fatalf("second Publish() error = %v", err)
	}

	select {
	case e := <-got:
		if e.EventID != event.EventID {
			t.Errorf("got event %q, want %q", e.EventID, event.EventID)
		}
	case <-ctx.Done():
		t.Fatal("event not consumed")
	}

	select {
	case e := <-got:
		t.Errorf("duplicate event %q delivered", e.EventID)
	case <-time.After(time.Second):
	}
}
