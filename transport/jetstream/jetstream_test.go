package jetstream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/connector/transport"
	"github.com/drblury/connector/transport/transporttest"
)

type fakeJetStream struct {
	mu        sync.Mutex
	infoErr   error
	added     []*nats.StreamConfig
	published []*nats.Msg
	subjects  []string
	handlers  []nats.MsgHandler
	subOpts   [][]nats.SubOpt
}

func (f *fakeJetStream) StreamInfo(string, ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &nats.StreamInfo{}, nil
}

func (f *fakeJetStream) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	f.added = append(f.added, cfg)
	return &nats.StreamInfo{Config: *cfg}, nil
}

func (f *fakeJetStream) PublishMsg(m *nats.Msg, _ ...nats.PubOpt) (*nats.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, m)
	return &nats.PubAck{}, nil
}

func (f *fakeJetStream) Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subj)
	f.handlers = append(f.handlers, cb)
	f.subOpts = append(f.subOpts, opts)
	return nil, nil
}

func TestRegistered(t *testing.T) {
	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "nats-jetstream", caps.Name)
	assert.True(t, caps.Durable)
	assert.Equal(t, transport.NATSJetStreamCapabilities, Capabilities())
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "CONNECTOR_DOMAIN_7", StreamName(7))
	assert.Equal(t, "connector.7.domain-7-Square", Subject(7, transport.TopicName(7, "Square")))
}

func TestNewEnsuresStream(t *testing.T) {
	t.Run("creates missing stream", func(t *testing.T) {
		js := &fakeJetStream{infoErr: nats.ErrStreamNotFound}
		_, err := New(js, nil, Config{DomainID: 3, Replicas: 3}, watermill.NopLogger{})
		require.NoError(t, err)

		require.Len(t, js.added, 1)
		cfg := js.added[0]
		assert.Equal(t, "CONNECTOR_DOMAIN_3", cfg.Name)
		assert.Equal(t, []string{"connector.3.>"}, cfg.Subjects)
		assert.Equal(t, 3, cfg.Replicas)
		assert.Equal(t, DefaultMaxAge, cfg.MaxAge)
		assert.Equal(t, nats.LimitsPolicy, cfg.Retention)
	})

	t.Run("keeps existing stream", func(t *testing.T) {
		js := &fakeJetStream{}
		_, err := New(js, nil, Config{}, nil)
		require.NoError(t, err)
		assert.Empty(t, js.added)
	})

	t.Run("lookup failure", func(t *testing.T) {
		js := &fakeJetStream{infoErr: errors.New("no responders")}
		_, err := New(js, nil, Config{}, nil)
		assert.ErrorContains(t, err, "no responders")
	})
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Replicas: -1}.withDefaults()
	assert.Equal(t, 1, cfg.Replicas)
	assert.Equal(t, DefaultMaxAge, cfg.MaxAge)

	cfg = Config{Replicas: 5, MaxAge: time.Minute}.withDefaults()
	assert.Equal(t, 5, cfg.Replicas)
	assert.Equal(t, time.Minute, cfg.MaxAge)
}

func TestPublishCarriesMetadata(t *testing.T) {
	js := &fakeJetStream{}
	tr, err := New(js, nil, Config{DomainID: 1}, nil)
	require.NoError(t, err)

	msg := message.NewMessage("01J0000000000000000000000A", []byte(`{"x":1}`))
	msg.Metadata.Set("connector_writer", "MyPublisher::MySquareWriter")
	require.NoError(t, tr.Publish("domain-1-Square", msg))

	require.Len(t, js.published, 1)
	got := js.published[0]
	assert.Equal(t, "connector.1.domain-1-Square", got.Subject)
	assert.Equal(t, `{"x":1}`, string(got.Data))
	assert.Equal(t, "MyPublisher::MySquareWriter", got.Header.Get("connector_writer"))
	assert.Equal(t, msg.UUID, got.Header.Get(nats.MsgIdHdr))
}

func TestSubscribeDeliversUntilClosed(t *testing.T) {
	js := &fakeJetStream{}
	released := false
	tr, err := New(js, func() { released = true }, Config{DomainID: 2}, nil)
	require.NoError(t, err)

	msgs, err := tr.Subscribe(context.Background(), "domain-2-Square")
	require.NoError(t, err)
	require.Len(t, js.handlers, 1)
	assert.Equal(t, "connector.2.domain-2-Square", js.subjects[0])
	assert.Len(t, js.subOpts[0], 3)

	header := nats.Header{}
	header.Set(nats.MsgIdHdr, "sample-1")
	header.Set("connector_type", "ShapeType")
	go js.handlers[0](&nats.Msg{Data: []byte(`{}`), Header: header})

	select {
	case msg := <-msgs:
		assert.Equal(t, "sample-1", msg.UUID)
		assert.Equal(t, "ShapeType", msg.Metadata.Get("connector_type"))
		assert.Empty(t, msg.Metadata.Get(nats.MsgIdHdr))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("expected delivery")
	}

	require.NoError(t, tr.Close())
	_, open := <-msgs
	assert.False(t, open)
	assert.True(t, released)

	js.handlers[0](&nats.Msg{Data: []byte(`{}`)})
	assert.ErrorIs(t, tr.Publish("domain-2-Square", message.NewMessage("late", nil)), ErrClosed)
	_, err = tr.Subscribe(context.Background(), "domain-2-Square")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscribeEndsWithContext(t *testing.T) {
	tr, err := New(&fakeJetStream{}, nil, Config{}, nil)
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := tr.Subscribe(ctx, "domain-0-Square")
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-msgs:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
}

func TestBuild(t *testing.T) {
	original := Connect
	defer func() { Connect = original }()

	t.Run("uses participant connection options", func(t *testing.T) {
		js := &fakeJetStream{infoErr: nats.ErrStreamNotFound}
		var gotURL string
		var gotOpts int
		Connect = func(url string, opts ...nats.Option) (JetStream, func(), error) {
			gotURL, gotOpts = url, len(opts)
			return js, func() {}, nil
		}

		tr, err := Build(context.Background(), &transporttest.Config{
			NATSURL:           "nats://localhost:4222",
			DomainID:          4,
			ClientName:        "Lib::P",
			JetStreamReplicas: 2,
		}, watermill.NopLogger{})
		require.NoError(t, err)
		defer tr.Publisher.Close()

		assert.Equal(t, "nats://localhost:4222", gotURL)
		assert.Equal(t, 3, gotOpts)
		require.Len(t, js.added, 1)
		assert.Equal(t, "CONNECTOR_DOMAIN_4", js.added[0].Name)
		assert.Equal(t, 2, js.added[0].Replicas)
	})

	t.Run("connect failure", func(t *testing.T) {
		Connect = func(string, ...nats.Option) (JetStream, func(), error) {
			return nil, nil, errors.New("refused")
		}
		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "refused")
	})

	t.Run("stream failure releases connection", func(t *testing.T) {
		released := false
		Connect = func(string, ...nats.Option) (JetStream, func(), error) {
			return &fakeJetStream{infoErr: errors.New("timeout")}, func() { released = true }, nil
		}
		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
		assert.Error(t, err)
		assert.True(t, released)
	})
}
