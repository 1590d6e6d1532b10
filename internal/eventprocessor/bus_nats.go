// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

//go:build nats

package eventprocessor

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/bustinel/internal/config"
	"github.com/tomtom215/bustinel/internal/logging"
)

// NewNATSBus creates a JetStream-backed bus. With cfg.EmbeddedServer set it
// first starts an in-process server and ignores cfg.URL.
func NewNATSBus(ctx context.Context, cfg config.NATSConfig) (*Bus, error) {
	var closers []func() error
	url := cfg.URL

	if cfg.EmbeddedServer {
		srv, err := NewEmbeddedServer(cfg.StoreDir)
		if err != nil {
			return nil, err
		}
		url = srv.ClientURL()
		closers = append(closers, srv.Shutdown)
		logging.Info().Str("url", url).Str("store_dir", cfg.StoreDir).Msg("Embedded NATS server started")
	}

	cleanup := func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}

	if err := ensureStream(ctx, url, cfg.StreamName); err != nil {
		cleanup()
		return nil, err
	}

	logger := watermillLogger()

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOptions(logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: "bustinel",
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOptions(logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: false,
			AckAsync:      false,
			DurablePrefix: "bustinel",
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.DeliverNew(),
				natsgo.BindStream(cfg.StreamName),
				natsgo.MaxDeliver(5),
			},
		},
	}, logger)
	if err != nil {
		_ = pub.Close()
		cleanup()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	logging.Info().Str("url", url).Str("stream", cfg.StreamName).Msg("NATS event bus connected")
	return newBus(BackendNATS, msgIDPublisher{pub}, sub, closers...), nil
}

func ensureStream(ctx context.Context, url, name string) error {
	nc, err := natsgo.Connect(url, natsgo.Timeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	if _, err := EnsureStream(ctx, js, DefaultStreamConfig(name)); err != nil {
		return err
	}
	return nil
}

func natsOptions(logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// msgIDPublisher sets Nats-Msg-Id to the message UUID so the stream's
// duplicate window drops republished events.
type msgIDPublisher struct {
	message.Publisher
}

func (p msgIDPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
			msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		}
	}
	return p.Publisher.Publish(topic, msgs...)
}
