package transport

// Capabilities describes what a transport guarantees to the participants of
// a domain.
type Capabilities struct {
	Name string

	// SupportsOrdering means samples of one writer arrive in write order.
	SupportsOrdering bool
	// SupportsTracing means message headers survive the trip, so the trace
	// context stamped by writers reaches readers.
	SupportsTracing bool
	// SupportsAck means delivery is acknowledged per message.
	SupportsAck bool
	// InProcess means participants only see each other inside one process.
	InProcess bool
	// Durable means samples outlive the participants that wrote them.
	Durable bool

	// MaxMessageSize is the maximum payload in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsReliableDelivery reports whether samples are acknowledged and
// arrive in order.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsOrdering
}

// Fits reports whether a payload of size bytes is accepted.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize == 0 || int64(size) <= c.MaxMessageSize
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		InProcess:        true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		Durable:          true,
		MaxMessageSize:   1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:             "nats-jetstream",
		SupportsOrdering: true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   1048576,
	}

	SQLiteCapabilities = Capabilities{
		Name:             "sqlite",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		Durable:          true,
	}

	PostgresCapabilities = Capabilities{
		Name:             "postgres",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		Durable:          true,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		Durable:          true,
		MaxMessageSize:   262144,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
		SupportsTracing:  true,
		Durable:          true,
	}
)
