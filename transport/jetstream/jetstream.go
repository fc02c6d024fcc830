// Package jetstream provides a NATS JetStream transport. Each domain owns a
// stream; every subscription reads it through its own ordered consumer, so
// all readers of a topic receive every sample published after they
// subscribed.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/connector/transport"
	natstransport "github.com/drblury/connector/transport/nats"
)

// TransportName is the name used to register this transport.
const TransportName = "nats-jetstream"

// DefaultMaxAge bounds how long a domain stream keeps samples.
const DefaultMaxAge = 24 * time.Hour

// ErrClosed is returned once the transport has been closed.
var ErrClosed = errors.New("jetstream: closed")

// JetStream is the part of nats.JetStreamContext the transport uses.
type JetStream interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
	Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Connect allows overriding the server connection for testing. The returned
// func releases the connection.
var Connect = func(url string, opts ...nats.Option) (JetStream, func(), error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return js, nc.Close, nil
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSJetStreamCapabilities)
}

// Build connects to the domain's server and makes sure its stream exists.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	js, release, err := Connect(cfg.GetNATSURL(), natstransport.ConnectionOptions(cfg)...)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("jetstream: connect: %w", err)
	}

	t, err := New(js, release, Config{
		DomainID: cfg.GetDomainID(),
		Replicas: cfg.GetJetStreamReplicas(),
	}, logger)
	if err != nil {
		release()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  t,
		Subscriber: t,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSJetStreamCapabilities
}

// Config describes the stream of one domain.
type Config struct {
	DomainID int
	Replicas int
	MaxAge   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	return c
}

// StreamName names the stream that carries a domain.
func StreamName(domainID int) string {
	return fmt.Sprintf("CONNECTOR_DOMAIN_%d", domainID)
}

// Subject maps a wire topic onto a subject of the domain stream.
func Subject(domainID int, topic string) string {
	return fmt.Sprintf("connector.%d.%s", domainID, topic)
}

// Transport publishes into and subscribes to one domain stream.
type Transport struct {
	js      JetStream
	release func()
	config  Config
	stream  string
	logger  watermill.LoggerAdapter

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

// New binds a transport to js and creates the domain stream when missing.
func New(js JetStream, release func(), cfg Config, logger watermill.LoggerAdapter) (*Transport, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if release == nil {
		release = func() {}
	}
	cfg = cfg.withDefaults()
	t := &Transport{
		js:      js,
		release: release,
		config:  cfg,
		stream:  StreamName(cfg.DomainID),
		logger:  logger.With(watermill.LogFields{"stream": StreamName(cfg.DomainID)}),
		closing: make(chan struct{}),
	}
	if err := t.ensureStream(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Transport) ensureStream() error {
	_, err := t.js.StreamInfo(t.stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("jetstream: stream info: %w", err)
	}

	_, err = t.js.AddStream(&nats.StreamConfig{
		Name:      t.stream,
		Subjects:  []string{fmt.Sprintf("connector.%d.>", t.config.DomainID)},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		Discard:   nats.DiscardOld,
		MaxAge:    t.config.MaxAge,
		Replicas:  t.config.Replicas,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("jetstream: add stream: %w", err)
	}
	t.logger.Info("Created domain stream", nil)
	return nil
}

// Publish stores messages in the domain stream. The message UUID doubles as
// the JetStream deduplication id.
func (t *Transport) Publish(topic string, messages ...*message.Message) error {
	if t.isClosed() {
		return ErrClosed
	}
	subject := Subject(t.config.DomainID, topic)

	for _, msg := range messages {
		header := nats.Header{}
		for k, v := range msg.Metadata {
			header.Set(k, v)
		}
		header.Set(nats.MsgIdHdr, msg.UUID)

		if _, err := t.js.PublishMsg(&nats.Msg{
			Subject: subject,
			Data:    msg.Payload,
			Header:  header,
		}); err != nil {
			return fmt.Errorf("jetstream: publish %s: %w", subject, err)
		}
	}
	return nil
}

type subscription struct {
	mu       sync.Mutex
	done     bool
	inflight sync.WaitGroup
}

// Subscribe creates an ordered consumer that starts after the newest stored
// sample of topic.
func (t *Transport) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}

	out := make(chan *message.Message)
	state := &subscription{}
	handler := func(m *nats.Msg) {
		state.mu.Lock()
		if state.done {
			state.mu.Unlock()
			return
		}
		state.inflight.Add(1)
		state.mu.Unlock()
		defer state.inflight.Done()

		t.deliver(ctx, toWatermill(m), out)
	}

	sub, err := t.js.Subscribe(Subject(t.config.DomainID, topic), handler,
		nats.BindStream(t.stream),
		nats.OrderedConsumer(),
		nats.DeliverNew(),
	)
	if err != nil {
		return nil, fmt.Errorf("jetstream: subscribe %s: %w", topic, err)
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		select {
		case <-ctx.Done():
		case <-t.closing:
		}
		if sub != nil {
			if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				t.logger.Error("Failed to unsubscribe", err, watermill.LogFields{"topic": topic})
			}
		}
		state.mu.Lock()
		state.done = true
		state.mu.Unlock()
		state.inflight.Wait()
		close(out)
	}()
	return out, nil
}

func (t *Transport) deliver(ctx context.Context, msg *message.Message, out chan<- *message.Message) {
	select {
	case out <- msg:
	case <-ctx.Done():
		return
	case <-t.closing:
		return
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		t.logger.Debug("Sample nacked", watermill.LogFields{"uuid": msg.UUID})
	case <-ctx.Done():
	case <-t.closing:
	}
}

func toWatermill(m *nats.Msg) *message.Message {
	uuid := m.Header.Get(nats.MsgIdHdr)
	if uuid == "" {
		uuid = watermill.NewULID()
	}
	msg := message.NewMessage(uuid, m.Data)
	for k, v := range m.Header {
		if len(v) == 0 || strings.HasPrefix(k, "Nats-") {
			continue
		}
		msg.Metadata.Set(k, v[0])
	}
	return msg
}

func (t *Transport) isClosed() bool {
	select {
	case <-t.closing:
		return true
	default:
		return false
	}
}

// Close ends every subscription and releases the connection.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closing)
		t.wg.Wait()
		t.release()
	})
	return nil
}
