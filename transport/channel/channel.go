// Package channel provides the in-process transport. All participants of one
// domain id inside a process share a single Watermill GoChannel, so a writer
// reaches every reader of its topic without a broker.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/connector/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the bus creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) PubSub {
	return gochannel.NewGoChannel(cfg, logger)
}

// PubSub is what a domain bus must provide.
type PubSub interface {
	message.Publisher
	message.Subscriber
}

// busConfig blocks Publish until every subscriber acknowledged, which keeps
// samples of one writer in write order.
var busConfig = gochannel.Config{
	OutputChannelBuffer:            64,
	BlockPublishUntilSubscriberAck: true,
}

type bus struct {
	pubsub PubSub
	refs   int
}

var (
	busesMu sync.Mutex
	buses   = map[int]*bus{}
)

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build attaches a participant to the bus of its domain, creating the bus on
// first use.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	h := acquire(cfg.GetDomainID(), logger)
	return transport.Transport{Publisher: h, Subscriber: h}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

func acquire(domainID int, logger watermill.LoggerAdapter) *handle {
	busesMu.Lock()
	defer busesMu.Unlock()

	b, ok := buses[domainID]
	if !ok {
		b = &bus{pubsub: Factory(busConfig, logger)}
		buses[domainID] = b
	}
	b.refs++
	return &handle{domainID: domainID, bus: b}
}

// OpenBuses reports how many domain buses are alive.
func OpenBuses() int {
	busesMu.Lock()
	defer busesMu.Unlock()
	return len(buses)
}

// handle is one participant's reference to a domain bus. It is both the
// publisher and the subscriber of the transport; closing it twice releases
// the reference once.
type handle struct {
	domainID int
	bus      *bus
	once     sync.Once
	err      error
}

func (h *handle) Publish(topic string, messages ...*message.Message) error {
	return h.bus.pubsub.Publish(topic, messages...)
}

func (h *handle) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return h.bus.pubsub.Subscribe(ctx, topic)
}

func (h *handle) Close() error {
	h.once.Do(func() {
		busesMu.Lock()
		defer busesMu.Unlock()

		h.bus.refs--
		if h.bus.refs > 0 {
			return
		}
		delete(buses, h.domainID)
		h.err = h.bus.pubsub.Close()
	})
	return h.err
}
