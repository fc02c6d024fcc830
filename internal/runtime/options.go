package runtime

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/connector/internal/runtime/logging"
	"github.com/drblury/connector/transport"
)

const tracerName = "github.com/drblury/connector"

// Option customises a Connector.
type Option func(*options)

type options struct {
	logger         logging.ServiceLogger
	metrics        *Metrics
	tracerProvider trace.TracerProvider
	registry       *transport.Registry
}

// WithLogger routes engine and transport logs to logger.
func WithLogger(logger logging.ServiceLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records connector activity into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracerProvider sets the provider for write and wait spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithTransportRegistry selects transports from r instead of the default
// registry.
func WithTransportRegistry(r *transport.Registry) Option {
	return func(o *options) { o.registry = r }
}

func newOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = logging.OrNop(o.logger)
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	return o
}
