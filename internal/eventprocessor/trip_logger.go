// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
	"github.com/tomtom215/bustinel/internal/models"
)

var errHandlerPanic = errors.New("event handler panicked")

// Handler processes one decoded event. A returned error nacks the message
// so the backend redelivers it.
type Handler func(ctx context.Context, event *TripObservedEvent) error

// TripLogger is the supervised consumer of trips.observed. It logs every
// new trip and then runs any extra handlers in order.
//
// The subscription is taken in NewTripLogger and lives as long as the bus,
// so events published between a crash and the supervisor restart are not
// lost.
type TripLogger struct {
	messages <-chan *message.Message
	handlers []Handler
	name     string
}

// NewTripLogger subscribes to trips.observed. ctx bounds the subscription
// and should outlive the service, typically the process context.
func NewTripLogger(ctx context.Context, bus *Bus, handlers ...Handler) (*TripLogger, error) {
	messages, err := bus.Subscribe(ctx, TopicTripsObserved)
	if err != nil {
		return nil, err
	}
	return &TripLogger{
		messages: messages,
		handlers: handlers,
		name:     "trip-logger",
	}, nil
}

// Serve implements suture.Service.
func (t *TripLogger) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-t.messages:
			if !ok {
				logging.Info().Str("service", t.name).Msg("Event subscription closed")
				return suture.ErrDoNotRestart
			}
			t.handle(msg)
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (t *TripLogger) String() string {
	return t.name
}

func (t *TripLogger) handle(msg *message.Message) {
	ctx := msg.Context()
	if id := msg.Metadata.Get("correlation_id"); id != "" {
		ctx = logging.ContextWithCorrelationID(ctx, id)
	}

	event, err := DeserializeEvent(msg.Payload)
	if err != nil {
		// Redelivery cannot fix a malformed payload.
		logging.Ctx(ctx).Error().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable event")
		metrics.RecordError(t.name, metrics.CategoryDecode)
		msg.Ack()
		return
	}

	if err := t.dispatch(ctx, event); err != nil {
		if errors.Is(err, errHandlerPanic) {
			// Redelivering would panic again.
			msg.Ack()
			return
		}
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", event.EventID).Msg("Event handler failed, requesting redelivery")
		msg.Nack()
		return
	}

	metrics.EventsConsumed.WithLabelValues(TopicTripsObserved).Inc()
	msg.Ack()
}

func (t *TripLogger) dispatch(ctx context.Context, event *TripObservedEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Str("service", t.name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Event handler panicked")
			metrics.RecordError(t.name, metrics.CategoryDefect)
			err = fmt.Errorf("%w: %v", errHandlerPanic, r)
		}
	}()

	record := event.Record
	logging.Ctx(ctx).Info().
		Str("event_id", event.EventID).
		Str("agency", record.Agency.Name).
		Str("route", routeName(record.Trip.Route)).
		Str("vehicle", record.Vehicle.ID).
		Str("vehicle_type", record.Vehicle.Type.String()).
		Str("trip", record.Trip.ID).
		Time("observed_at", record.Timestamp).
		Msg("New trip observed")

	for _, h := range t.handlers {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// routeName prefers the public short name.
func routeName(r models.RouteSnapshot) string {
	if r.ShortName != nil {
		return *r.ShortName
	}
	if r.LongName != nil {
		return *r.LongName
	}
	return r.ID
}
