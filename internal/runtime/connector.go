package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/connector/internal/engine"
	errspkg "github.com/drblury/connector/internal/runtime/errors"
)

// WaitInfinite makes Wait block until data arrives.
const WaitInfinite = engine.Infinite

// Connector is the root of a participant session. Inputs and outputs derived
// from it stop working once it is disposed.
type Connector struct {
	name   string
	source string

	handle    *nativeHandle[*engine.Participant]
	state     lifecycle
	waiting   atomic.Bool
	disposeMu sync.Mutex

	metrics *Metrics
	tracer  trace.Tracer
}

// NewConnector opens the participant configName ("Library::Participant")
// described by the configuration at configSource. configSource is a file path
// or an inline document prefixed with "str://".
func NewConnector(ctx context.Context, configName, configSource string, opts ...Option) (*Connector, error) {
	if configName == "" {
		return nil, fmt.Errorf("%w: configuration name is empty", errspkg.ErrInvalidArgument)
	}
	if configSource == "" {
		return nil, fmt.Errorf("%w: configuration source is empty", errspkg.ErrInvalidArgument)
	}
	o := newOptions(opts)

	p, err := engine.Open(ctx, configName, configSource, engine.Options{
		Logger:   o.logger,
		Registry: o.registry,
	})
	if err != nil {
		return nil, err
	}

	c := &Connector{
		name:    configName,
		source:  configSource,
		handle:  newNativeHandle(p, (*engine.Participant).Close),
		metrics: o.metrics,
		tracer:  o.tracerProvider.Tracer(tracerName),
	}
	c.metrics.entityOpened(kindConnector)
	return c, nil
}

// ConfigName returns the participant name the connector was created with.
func (c *Connector) ConfigName() string { return c.name }

// ConfigSource returns the configuration source the connector was created with.
func (c *Connector) ConfigSource() string { return c.source }

// Disposed reports whether Dispose has run.
func (c *Connector) Disposed() bool { return c.state.Disposed() }

// GetInput returns a new Input for the reader called name.
func (c *Connector) GetInput(name string) (*Input, error) { return NewInput(c, name) }

// GetOutput returns a new Output for the writer called name.
func (c *Connector) GetOutput(name string) (*Output, error) { return NewOutput(c, name) }

// Wait blocks until any input of the connector holds an unread sample, the
// timeout elapses, or ctx ends. A zero timeout polls once. Only one wait may
// be outstanding per connector.
func (c *Connector) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	return c.wait(ctx, timeout, "connector", c.name, nil, c)
}

func (c *Connector) wait(ctx context.Context, timeout time.Duration, scope, entity string, reader *engine.Reader, chain ...disposable) (bool, error) {
	if timeout < 0 {
		return false, fmt.Errorf("%w: negative timeout %s", errspkg.ErrInvalidArgument, timeout)
	}
	if err := checkUsable("wait", entity, chain...); err != nil {
		return false, err
	}
	if !c.waiting.CompareAndSwap(false, true) {
		return false, errspkg.Wrap(errspkg.ErrConcurrentWait, "wait", c.name)
	}
	defer c.waiting.Store(false)
	// A dispose may have completed between the first check and the flag.
	if err := checkUsable("wait", entity, chain...); err != nil {
		return false, err
	}

	ctx, span := c.tracer.Start(ctx, "connector.wait", trace.WithAttributes(
		attribute.String("connector.participant", c.name),
		attribute.String("connector.entity", entity),
		attribute.Int64("connector.timeout_ms", timeout.Milliseconds()),
	))
	defer span.End()

	var readers []*engine.Reader
	if reader != nil {
		readers = append(readers, reader)
	}
	start := time.Now()
	ok, err := c.handle.Get().WaitForData(ctx, timeout, readers...)
	c.metrics.observeWait(scope, ok, err, time.Since(start))

	span.SetAttributes(attribute.Bool("connector.data_available", ok))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ok, err
}

// Dispose closes the participant. Repeated calls are no-ops. Disposing while
// a wait is outstanding fails with ErrConcurrentWait and leaves the
// connector usable.
func (c *Connector) Dispose() error {
	c.disposeMu.Lock()
	defer c.disposeMu.Unlock()
	if c.state.Disposed() {
		return nil
	}
	if !c.waiting.CompareAndSwap(false, true) {
		return errspkg.Wrap(errspkg.ErrConcurrentWait, "dispose", c.name)
	}
	defer c.waiting.Store(false)

	if !c.state.markDisposed() {
		return nil
	}
	c.metrics.entityClosed(kindConnector)
	return c.handle.Release()
}

// Close is Dispose under the io.Closer name.
func (c *Connector) Close() error { return c.Dispose() }
