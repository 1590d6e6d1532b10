// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package eventprocessor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
)

// Backend names accepted by EVENT_BACKEND.
const (
	BackendChannel = "channel"
	BackendNATS    = "nats"
)

// Bus publishes and delivers events over a Watermill pub/sub pair.
type Bus struct {
	backend    string
	publisher  message.Publisher
	subscriber message.Subscriber
	breaker    *gobreaker.CircuitBreaker[struct{}]

	mu      sync.RWMutex
	closed  bool
	closers []func() error
}

// NewBus creates the bus selected by cfg.Backend.
func NewBus(ctx context.Context, cfg config.EventsConfig) (*Bus, error) {
	switch cfg.Backend {
	case "", BackendChannel:
		return NewChannelBus(), nil
	case BackendNATS:
		return NewNATSBus(ctx, cfg.NATS)
	default:
		return nil, fmt.Errorf("unknown event backend %q", cfg.Backend)
	}
}

// NewChannelBus creates an in-process bus on Watermill's gochannel pub/sub.
// Messages published while nobody is subscribed are dropped.
func NewChannelBus() *Bus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermillLogger())

	return newBus(BackendChannel, pubSub, pubSub)
}

func newBus(backend string, pub message.Publisher, sub message.Subscriber, closers ...func() error) *Bus {
	return &Bus{
		backend:    backend,
		publisher:  pub,
		subscriber: sub,
		breaker:    NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		closers:    closers,
	}
}

// watermillLogger routes Watermill's own logs through zerolog.
func watermillLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLogger())
}

// Backend returns the backend name.
func (b *Bus) Backend() string {
	return b.backend
}

// Publish serializes event and publishes it on its topic. The message UUID
// is the event ID.
func (b *Bus) Publish(ctx context.Context, event *TripObservedEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	data, err := SerializeEvent(event)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}

	msg := message.NewMessage(event.EventID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("agency_id", event.Record.Agency.ID)
	msg.Metadata.Set("route_id", event.Record.Trip.Route.ID)
	msg.Metadata.Set("vehicle_id", event.Record.Vehicle.ID)
	msg.Metadata.Set("schema_version", fmt.Sprintf("%d", event.SchemaVersion))
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		msg.Metadata.Set("correlation_id", id)
	}

	topic := event.Topic()
	_, err = b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.publisher.Publish(topic, msg)
	})
	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues(b.breaker.Name(), breakerResult(err)).Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.breaker.Name(), "success").Inc()
	metrics.EventsPublished.WithLabelValues(topic).Inc()
	return nil
}

// Subscribe returns the message channel for topic. The channel is closed
// when ctx is done or the bus is closed. Every message must be acked or
// nacked.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	messages, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return messages, nil
}

// Close shuts down the publisher and subscriber, then any backend resources
// such as an embedded server. It is safe to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	// gochannel uses one value for both sides.
	if any(b.subscriber) != any(b.publisher) {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func breakerResult(err error) string {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "rejected"
	}
	return "failure"
}
