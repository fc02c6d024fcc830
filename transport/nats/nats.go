// Package nats provides a NATS Core transport. Subjects are not bound to a
// queue group, so every reader of a topic receives every sample.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/connector/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

// ReconnectWait is the delay between reconnect attempts to the server.
var ReconnectWait = 2 * time.Second

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS transport.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	options := ConnectionOptions(cfg)
	coreOnly := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: options,
			Marshaler:   marshaler,
			JetStream:   coreOnly,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:            url,
			NatsOptions:    options,
			Unmarshaler:    marshaler,
			CloseTimeout:   5 * time.Second,
			AckWaitTimeout: 5 * time.Second,
			JetStream:      coreOnly,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// ConnectionOptions names the connection after the participant and keeps
// reconnecting for as long as the participant lives.
func ConnectionOptions(cfg transport.Config) []nc.Option {
	opts := []nc.Option{
		nc.MaxReconnects(-1),
		nc.ReconnectWait(ReconnectWait),
	}
	if name := cfg.GetClientName(); name != "" {
		opts = append(opts, nc.Name(name))
	}
	return opts
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
