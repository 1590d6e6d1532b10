// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package eventprocessor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/logging"
)

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestChannelBus_PublishSubscribe(t *testing.T) {
	bus := NewChannelBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := bus.Subscribe(ctx, TopicTripsObserved)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	event := testEvent()
	pubCtx := logging.ContextWithCorrelationID(ctx, "corr-1")
	if err := bus.Publish(pubCtx, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msg := receive(t, messages)
	defer msg.Ack()

	if msg.UUID != event.EventID {
		t.Errorf("message UUID = %q, want event ID %q", msg.UUID, event.EventID)
	}
	wantMeta := map[string]string{
		"agency_id":      "A",
		"route_id":       "R1",
		"vehicle_id":     "v1",
		"schema_version": "1",
		"correlation_id": "corr-1",
	}
	for k, v := range wantMeta {
		if got := msg.Metadata.Get(k); got != v {
			t.Errorf("metadata %s = %q, want %q", k, got, v)
		}
	}

	decoded, err := DeserializeEvent(msg.Payload)
	if err != nil || decoded.Record.ID != "rec-1" {
		t.Errorf("payload = %+v, %v", decoded, err)
	}
}

func TestBus_PublishInvalidEvent(t *testing.T) {
	bus := NewChannelBus()
	defer bus.Close()

	event := testEvent()
	event.Record.Vehicle.ID = ""
	if err := bus.Publish(context.Background(), event); err == nil {
		t.Error("Publish() accepted an invalid event")
	}
}

func TestBus_Closed(t *testing.T) {
	bus := NewChannelBus()
	ctx := context.Background()

	messages, err := bus.Subscribe(ctx, TopicTripsObserved)
	if err != nil {
		t.Fatal(err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	select {
	case _, ok := <-messages:
		if ok {
			t.Error("received a message after Close")
		}
	case <-time.After(2 * time.Second):
		t.Error("subscription channel not closed by Close")
	}

	if err := bus.Publish(ctx, testEvent()); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Publish() after Close = %v, want ErrBusClosed", err)
	}
	if _, err := bus.Subscribe(ctx, TopicTripsObserved); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Subscribe() after Close = %v, want ErrBusClosed", err)
	}
}

func TestNewBus(t *testing.T) {
	ctx := context.Background()

	bus, err := NewBus(ctx, config.EventsConfig{Backend: BackendChannel})
	if err != nil {
		t.Fatalf("NewBus(channel) error = %v", err)
	}
	if bus.Backend() != BackendChannel {
		t.Errorf("Backend() = %q", bus.Backend())
	}
	_ = bus.Close()

	if _, err := NewBus(ctx, config.EventsConfig{Backend: "kafka"}); err == nil {
		t.Error("NewBus(kafka) succeeded")
	}
}
