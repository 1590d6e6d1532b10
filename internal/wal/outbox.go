// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package wal

import (
	"context"
	"fmt"

	"github.com/tomtom215/bustinel/internal/eventprocessor"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
)

const component = "event-outbox"

// Publisher delivers events. Implemented by *eventprocessor.Bus.
type Publisher interface {
	Publish(ctx context.Context, event *eventprocessor.TripObservedEvent) error
}

// Outbox publishes through the WAL. It has the same Publish signature as
// the bus, so the pipeline uses either one.
type Outbox struct {
	wal *BadgerWAL
	bus Publisher
}

// NewOutbox creates an outbox writing to w and delivering to bus.
func NewOutbox(w *BadgerWAL, bus Publisher) *Outbox {
	return &Outbox{wal: w, bus: bus}
}

// Publish persists event, then publishes it.
//
// A publish failure leaves the entry pending for the retry loop and is
// still returned, so callers can log it. When the WAL itself cannot be
// written the event is published directly.
func (o *Outbox) Publish(ctx context.Context, event *eventprocessor.TripObservedEvent) error {
	payload, err := eventprocessor.SerializeEvent(event)
	if err != nil {
		return err
	}

	entryID, err := o.wal.Write(ctx, payload)
	if err != nil {
		metrics.RecordError(component, metrics.CategoryPersistence)
		logging.Ctx(ctx).Error().Err(err).
			Str("event_id", event.EventID).
			Msg("Outbox write failed, publishing without durability")
		return o.bus.Publish(ctx, event)
	}
	defer o.wal.Release(entryID)

	if err := o.bus.Publish(ctx, event); err != nil {
		if uerr := o.wal.UpdateAttempt(ctx, entryID, err.Error()); uerr != nil {
			logging.Ctx(ctx).Warn().Err(uerr).Str("entry_id", entryID).Msg("Outbox failed to record attempt")
		}
		metrics.RecordOutboxDelivery("failed")
		return fmt.Errorf("publish queued for retry: %w", err)
	}

	if err := o.wal.Confirm(ctx, entryID); err != nil {
		// The retry loop republishes it under the same event ID.
		logging.Ctx(ctx).Warn().Err(err).Str("entry_id", entryID).Msg("Outbox failed to confirm entry")
	}
	metrics.RecordOutboxDelivery("published")
	return nil
}
