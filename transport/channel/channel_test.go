package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/connector/transport"
	"github.com/drblury/connector/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "channel", caps.Name)
	assert.True(t, caps.InProcess)
	assert.True(t, caps.SupportsOrdering)
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestParticipantsOfOneDomainShareABus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, err := Build(ctx, &transporttest.Config{DomainID: 41}, watermill.NopLogger{})
	require.NoError(t, err)
	sub, err := Build(ctx, &transporttest.Config{DomainID: 41}, watermill.NopLogger{})
	require.NoError(t, err)
	other, err := Build(ctx, &transporttest.Config{DomainID: 42}, watermill.NopLogger{})
	require.NoError(t, err)

	received, err := sub.Subscriber.Subscribe(ctx, "Square")
	require.NoError(t, err)
	isolated, err := other.Subscriber.Subscribe(ctx, "Square")
	require.NoError(t, err)

	payloads := make(chan string, 1)
	go func() {
		msg := <-received
		payloads <- string(msg.Payload)
		msg.Ack()
	}()

	// Publish returns once every subscriber of the domain acknowledged.
	require.NoError(t, pub.Publisher.Publish("Square", message.NewMessage("1", []byte(`{"x":1}`))))

	select {
	case got := <-payloads:
		assert.Equal(t, `{"x":1}`, got)
	case <-time.After(time.Second):
		t.Fatal("sample not delivered within domain")
	}

	select {
	case <-isolated:
		t.Fatal("sample leaked into another domain")
	default:
	}

	cancel()
	require.NoError(t, pub.Publisher.Close())
	require.NoError(t, sub.Subscriber.Close())
	require.NoError(t, other.Publisher.Close())
}

func TestBusClosedWithLastReference(t *testing.T) {
	original := Factory
	defer func() { Factory = original }()

	created := 0
	var last *recordingPubSub
	Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) PubSub {
		created++
		assert.True(t, cfg.BlockPublishUntilSubscriberAck)
		last = &recordingPubSub{}
		return last
	}

	before := OpenBuses()
	a, err := Build(context.Background(), &transporttest.Config{DomainID: 77}, nil)
	require.NoError(t, err)
	b, err := Build(context.Background(), &transporttest.Config{DomainID: 77}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, before+1, OpenBuses())

	require.NoError(t, a.Publisher.Close())
	require.NoError(t, a.Subscriber.Close())
	assert.Equal(t, 0, last.closed, "bus must stay open while referenced")

	require.NoError(t, b.Publisher.Close())
	assert.Equal(t, 1, last.closed)
	assert.Equal(t, before, OpenBuses())
}

type recordingPubSub struct {
	closed int
}

func (r *recordingPubSub) Publish(string, ...*message.Message) error { return nil }
func (r *recordingPubSub) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (r *recordingPubSub) Close() error {
	r.closed++
	return nil
}
