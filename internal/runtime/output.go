package runtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/connector/internal/engine"
	errspkg "github.com/drblury/connector/internal/runtime/errors"
)

// Output publishes the instance of one configured writer.
type Output struct {
	name      string
	connector *Connector
	handle    *nativeHandle[*engine.Writer]
	state     lifecycle
	instance  *Instance
}

// NewOutput resolves the writer called name ("Publisher::Writer") on c.
func NewOutput(c *Connector, name string) (*Output, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: connector is nil", errspkg.ErrInvalidArgument)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: output name is empty", errspkg.ErrInvalidArgument)
	}
	if err := checkUsable("get output", c.name, c); err != nil {
		return nil, err
	}
	w, err := c.handle.Get().Writer(name)
	if err != nil {
		return nil, err
	}

	out := &Output{
		name:      name,
		connector: c,
		handle: newNativeHandle(w, func(w *engine.Writer) error {
			w.Release()
			return nil
		}),
	}
	out.instance = &Instance{output: out}
	c.metrics.entityOpened(kindOutput)
	return out, nil
}

// Name returns the writer name.
func (out *Output) Name() string { return out.name }

// Disposed reports whether Dispose has run on this output. It does not
// reflect the connector.
func (out *Output) Disposed() bool { return out.state.Disposed() }

func (out *Output) usable(op string) error {
	return checkUsable(op, out.name, out, out.connector)
}

// Instance returns the staging instance of the output.
func (out *Output) Instance() *Instance { return out.instance }

// Write publishes the instance. Its values are kept for the next write.
func (out *Output) Write(ctx context.Context) error {
	return out.publish(ctx, "connector.write", (*engine.Writer).Write)
}

// DisposeInstance publishes a sample without data that marks the instance,
// identified by its key fields, as disposed.
func (out *Output) DisposeInstance(ctx context.Context) error {
	return out.publish(ctx, "connector.dispose_instance", (*engine.Writer).DisposeInstance)
}

func (out *Output) publish(ctx context.Context, spanName string, send func(*engine.Writer, context.Context) error) error {
	if err := out.usable("write"); err != nil {
		return err
	}
	w := out.handle.Get()
	ctx, span := out.connector.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("connector.participant", out.connector.name),
			attribute.String("connector.entity", out.name),
			attribute.String("connector.topic", w.Topic()),
			attribute.String("connector.type", w.TypeName()),
		),
	)
	defer span.End()

	if err := send(w, ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	out.connector.metrics.sampleWritten(out.name)
	return nil
}

// ClearValues resets the instance to the type defaults.
func (out *Output) ClearValues() error {
	return out.instance.Clear()
}

// Dispose releases the writer handle. The connector is not affected.
func (out *Output) Dispose() error {
	if !out.state.markDisposed() {
		return nil
	}
	out.connector.metrics.entityClosed(kindOutput)
	return out.handle.Release()
}

// Close is Dispose under the io.Closer name.
func (out *Output) Close() error { return out.Dispose() }
