// Package engine is the data-distribution participant behind a connector:
// it loads a participant configuration, builds its transport, and exposes
// schema-typed writers and caching readers over it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/connector/internal/runtime/config"
	errspkg "github.com/drblury/connector/internal/runtime/errors"
	"github.com/drblury/connector/internal/runtime/logging"
	"github.com/drblury/connector/transport"
)

// Infinite makes WaitForData block until data arrives or ctx ends.
const Infinite time.Duration = math.MaxInt64

// Options tune Open.
type Options struct {
	Logger logging.ServiceLogger
	// Registry selects transports. Nil uses transport.DefaultRegistry.
	Registry *transport.Registry
}

// Participant is an open participant with every configured writer and reader.
type Participant struct {
	name   string
	config *config.Participant
	logger logging.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber

	writers map[string]*Writer
	readers map[string]*Reader
	order   []*Reader

	signal    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Open loads the configuration at source, resolves the participant called
// name ("Library::Participant") and connects it. Subscriptions outlive ctx;
// they end with Close.
func Open(ctx context.Context, name, source string, opts Options) (*Participant, error) {
	doc, err := config.Load(source)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %w", errspkg.ErrEntityNotFound, source, err)
	}
	resolved, err := doc.ResolveParticipant(name)
	if err != nil {
		return nil, err
	}
	schemas, err := CompileTypes(resolved.Types)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrEntityNotFound, err)
	}
	config.ApplyEnv(&resolved.Transport)

	logger := logging.OrNop(opts.Logger).With(logging.LogFields{
		"participant": name,
		"domain_id":   resolved.DomainID,
		"transport":   resolved.Transport.GetPubSubSystem(),
	})
	registry := opts.Registry
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	tr, err := registry.Build(ctx, &resolved.Transport, logging.NewWatermillAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("open participant %s: %w", name, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	p := &Participant{
		name:       name,
		config:     resolved,
		logger:     logger,
		publisher:  tr.Publisher,
		subscriber: tr.Subscriber,
		writers:    make(map[string]*Writer, len(resolved.Writers)),
		readers:    make(map[string]*Reader, len(resolved.Readers)),
		signal:     make(chan struct{}, 1),
		closed:     make(chan struct{}),
		cancel:     cancel,
	}

	for _, ep := range resolved.Writers {
		p.writers[ep.Name] = newWriter(p, ep.Name, ep.Topic, resolved.DomainID, schemas[ep.TypeName])
	}
	for _, ep := range resolved.Readers {
		r := newReader(p, ep.Name, ep.Topic, resolved.DomainID, schemas[ep.TypeName], ep.HistoryDepth)
		msgs, err := p.subscriber.Subscribe(subCtx, r.wireTopic)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("subscribe %s: %w", ep.Name, err)
		}
		p.readers[ep.Name] = r
		p.order = append(p.order, r)
		p.wg.Add(1)
		go r.pump(subCtx, msgs)
	}

	if tr.Start != nil {
		if err := tr.Start(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("start transport: %w", err)
		}
	}

	logger.Info("participant opened", logging.LogFields{
		"writers": len(p.writers),
		"readers": len(p.readers),
	})
	return p, nil
}

// Name returns the qualified participant name.
func (p *Participant) Name() string { return p.name }

// Config returns the resolved participant configuration.
func (p *Participant) Config() *config.Participant { return p.config }

// Writer returns a handle on a configured writer.
func (p *Participant) Writer(name string) (*Writer, error) {
	w, ok := p.writers[name]
	if !ok {
		return nil, errspkg.Wrap(errspkg.ErrEntityNotFound, "writer", name)
	}
	w.handles.Add(1)
	return w, nil
}

// Reader returns a handle on a configured reader.
func (p *Participant) Reader(name string) (*Reader, error) {
	r, ok := p.readers[name]
	if !ok {
		return nil, errspkg.Wrap(errspkg.ErrEntityNotFound, "reader", name)
	}
	r.handles.Add(1)
	return r, nil
}

func (p *Participant) notify() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func anyUnread(readers []*Reader) bool {
	for _, r := range readers {
		if r.HasUnread() {
			return true
		}
	}
	return false
}

// WaitForData blocks until one of readers (all readers when none are given)
// holds an unread sample. It returns false when timeout elapses first. A zero
// timeout only polls; Infinite never times out.
func (p *Participant) WaitForData(ctx context.Context, timeout time.Duration, readers ...*Reader) (bool, error) {
	if timeout < 0 {
		return false, fmt.Errorf("%w: negative timeout %s", errspkg.ErrInvalidArgument, timeout)
	}
	if len(readers) == 0 {
		readers = p.order
	}
	if anyUnread(readers) {
		return true, nil
	}
	if timeout == 0 {
		return false, nil
	}

	var expired <-chan time.Time
	if timeout != Infinite {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		select {
		case <-p.signal:
			if anyUnread(readers) {
				return true, nil
			}
		case <-expired:
			return anyUnread(readers), nil
		case <-ctx.Done():
			return false, ctx.Err()
		case <-p.closed:
			return false, errspkg.Wrap(errspkg.ErrDisposed, "wait", p.name)
		}
	}
}

// Close stops every subscription and releases the transport. It is safe to
// call more than once.
func (p *Participant) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		var errs []error
		if p.subscriber != nil {
			if err := p.subscriber.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close subscriber: %w", err))
			}
		}
		if p.publisher != nil {
			if err := p.publisher.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher: %w", err))
			}
		}
		p.closeErr = errors.Join(errs...)
		close(p.closed)
		p.logger.Info("participant closed", nil)
	})
	return p.closeErr
}

// Closed reports whether Close has run.
func (p *Participant) Closed() bool {
	select {
	case <-p.closed:
		return true
	default:
	}
	return false
}
