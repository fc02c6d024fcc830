package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/drblury/connector/internal/engine"
	errspkg "github.com/drblury/connector/internal/runtime/errors"
)

// Input reads the samples received by one configured reader.
type Input struct {
	name      string
	connector *Connector
	handle    *nativeHandle[*engine.Reader]
	state     lifecycle
	samples   *SampleCollection
}

// NewInput resolves the reader called name ("Subscriber::Reader") on c.
func NewInput(c *Connector, name string) (*Input, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: connector is nil", errspkg.ErrInvalidArgument)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: input name is empty", errspkg.ErrInvalidArgument)
	}
	if err := checkUsable("get input", c.name, c); err != nil {
		return nil, err
	}
	r, err := c.handle.Get().Reader(name)
	if err != nil {
		return nil, err
	}

	in := &Input{
		name:      name,
		connector: c,
		handle: newNativeHandle(r, func(r *engine.Reader) error {
			r.Release()
			return nil
		}),
	}
	in.samples = &SampleCollection{input: in}
	c.metrics.entityOpened(kindInput)
	return in, nil
}

// Name returns the reader name.
func (in *Input) Name() string { return in.name }

// Disposed reports whether Dispose has run on this input. It does not reflect
// the connector.
func (in *Input) Disposed() bool { return in.state.Disposed() }

func (in *Input) usable(op string) error {
	return checkUsable(op, in.name, in, in.connector)
}

// Read exposes the queued samples without removing them.
func (in *Input) Read() error {
	if err := in.usable("read"); err != nil {
		return err
	}
	r := in.handle.Get()
	r.Read()
	in.connector.metrics.samplesExposed(in.name, "read", r.Len())
	return nil
}

// Take exposes the queued samples and removes them from the queue.
func (in *Input) Take() error {
	if err := in.usable("take"); err != nil {
		return err
	}
	r := in.handle.Get()
	r.Take()
	in.connector.metrics.samplesExposed(in.name, "take", r.Len())
	return nil
}

// Samples returns the view over the samples exposed by the last Read or Take.
func (in *Input) Samples() *SampleCollection { return in.samples }

// WaitForSamples is Connector.Wait restricted to this input. It shares the
// connector's single-waiter guard.
func (in *Input) WaitForSamples(ctx context.Context, timeout time.Duration) (bool, error) {
	return in.connector.wait(ctx, timeout, "input", in.name, in.handle.Get(), in, in.connector)
}

// Dispose releases the reader handle. The connector is not affected.
func (in *Input) Dispose() error {
	if !in.state.markDisposed() {
		return nil
	}
	in.connector.metrics.entityClosed(kindInput)
	return in.handle.Release()
}

// Close is Dispose under the io.Closer name.
func (in *Input) Close() error { return in.Dispose() }
