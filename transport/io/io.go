// Package io provides a file transport. Samples are appended to a shared
// JSON-lines file; readers tail the file, optionally replaying what was
// recorded before they subscribed.
package io

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/connector/internal/runtime/jsoncodec"
	"github.com/drblury/connector/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is used when the domain names no file.
const DefaultFilePath = "samples.jsonl"

// PollInterval is how often subscribers look for appended records.
var PollInterval = 20 * time.Millisecond

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return &Publisher{filePath: filePath, logger: logger}, nil
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(filePath string, replay bool, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return &Subscriber{filePath: filePath, replay: replay, logger: logger, closing: make(chan struct{})}, nil
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build creates a new file transport.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetIOFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	sub, err := SubscriberFactory(filePath, cfg.GetIOReplay(), logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// Record is one line of the file.
type Record struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends records to the file.
type Publisher struct {
	filePath string
	logger   watermill.LoggerAdapter
	mu       sync.Mutex
}

// Publish appends one record per message.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	var buf bytes.Buffer
	for _, msg := range messages {
		if err := jsoncodec.Encode(&buf, Record{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		}); err != nil {
			return err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (p *Publisher) Close() error {
	return nil
}

// Subscriber tails the file.
type Subscriber struct {
	filePath string
	replay   bool
	logger   watermill.LoggerAdapter

	closeOnce sync.Once
	closing   chan struct{}
	wg        sync.WaitGroup
}

// Subscribe starts tailing the file for records of topic. Without replay the
// position is fixed before Subscribe returns, so every record appended
// afterwards is delivered.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, errors.New("io: subscriber closed")
	default:
	}

	f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	if !s.replay {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer f.Close()
		s.tail(ctx, f, topic, out)
	}()
	return out, nil
}

func (s *Subscriber) tail(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var pending []byte
	chunk := make([]byte, 32*1024)
	for {
		for {
			n, err := f.Read(chunk)
			pending = append(pending, chunk[:n]...)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					s.logger.Error("Failed to read sample file", err, watermill.LogFields{"file": s.filePath})
					return
				}
				break
			}
		}

		for {
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := pending[:idx]
			pending = pending[idx+1:]
			if !s.deliver(ctx, line, topic, out) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case <-ticker.C:
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, line []byte, topic string, out chan<- *message.Message) bool {
	if len(bytes.TrimSpace(line)) == 0 {
		return true
	}
	var rec Record
	if err := jsoncodec.Unmarshal(line, &rec); err != nil {
		s.logger.Error("Skipping malformed record", err, watermill.LogFields{"file": s.filePath})
		return true
	}
	if rec.Topic != topic {
		return true
	}

	msg := message.NewMessage(rec.UUID, rec.Payload)
	if rec.Metadata != nil {
		msg.Metadata = rec.Metadata
	}

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Debug("Record nacked", watermill.LogFields{"uuid": msg.UUID})
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}
	return true
}

// Close stops every subscription and waits for them to finish.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.wg.Wait()
	return nil
}
