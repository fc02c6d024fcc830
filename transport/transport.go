// Package transport defines how a domain's samples reach other participants.
// Each implementation (channel, nats, kafka, ...) lives in its own
// sub-package and registers a Builder under the name used by the
// "transport.system" key of a domain.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// Start, when set, is invoked once every reader of the participant has
	// subscribed. Transports that serve subscriptions from a listener start
	// it here.
	Start func(ctx context.Context) error
}

// Builder creates a transport for one participant.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config exposes the transport settings of a resolved domain.
type Config interface {
	GetPubSubSystem() string
	GetDomainID() int
	// GetClientName identifies the participant towards brokers that accept a
	// client or connection name.
	GetClientName() string

	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string
	GetJetStreamReplicas() int

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	GetIOFile() string
	GetIOReplay() bool

	GetSQLiteFile() string
	GetPostgresURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their
// capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// TopicName maps a domain topic onto the name used on the wire. Topics of
// different domains never collide on a shared broker.
func TopicName(domainID int, topic string) string {
	return fmt.Sprintf("domain-%d-%s", domainID, sanitize(topic))
}

func sanitize(topic string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, topic)
}
