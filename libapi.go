package connector

import (
	"time"

	runtimepkg "github.com/drblury/connector/internal/runtime"
	configpkg "github.com/drblury/connector/internal/runtime/config"
	errspkg "github.com/drblury/connector/internal/runtime/errors"
	"github.com/drblury/connector/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/connector/internal/runtime/logging"
	metadatapkg "github.com/drblury/connector/internal/runtime/metadata"
	"github.com/drblury/connector/transport"
	_ "github.com/drblury/connector/transport/transports"
)

type (
	Connector        = runtimepkg.Connector
	Input            = runtimepkg.Input
	Output           = runtimepkg.Output
	Instance         = runtimepkg.Instance
	SampleCollection = runtimepkg.SampleCollection
	SampleIterator   = runtimepkg.SampleIterator
	Sample           = runtimepkg.Sample
	LooseFields      = runtimepkg.LooseFields
	StrictDecoder    = runtimepkg.StrictDecoder
	Number           = runtimepkg.Number
	Option           = runtimepkg.Option
	Metrics          = runtimepkg.Metrics

	SampleInfo    = metadatapkg.SampleInfo
	InstanceState = metadatapkg.InstanceState

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ErrorKind             = errspkg.ErrorKind
	ConfigValidationError = errspkg.ConfigValidationError

	Config = configpkg.Document

	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

// WaitInfinite makes Wait block until data arrives.
const WaitInfinite time.Duration = runtimepkg.WaitInfinite

const (
	InstanceAlive    = metadatapkg.InstanceAlive
	InstanceDisposed = metadatapkg.InstanceDisposed
)

const (
	KindUnknown         = errspkg.KindUnknown
	KindInvalidArgument = errspkg.KindInvalidArgument
	KindEntityNotFound  = errspkg.KindEntityNotFound
	KindDisposed        = errspkg.KindDisposed
	KindConcurrentWait  = errspkg.KindConcurrentWait
	KindSchemaMismatch  = errspkg.KindSchemaMismatch
)

var (
	NewConnector = runtimepkg.NewConnector
	NewInput     = runtimepkg.NewInput
	NewOutput    = runtimepkg.NewOutput
	NewMetrics   = runtimepkg.NewMetrics

	WithLogger            = runtimepkg.WithLogger
	WithMetrics           = runtimepkg.WithMetrics
	WithTracerProvider    = runtimepkg.WithTracerProvider
	WithTransportRegistry = runtimepkg.WithTransportRegistry

	LoadConfig      = configpkg.Load
	ParseConfig     = configpkg.Parse
	ParseConfigTOML = configpkg.ParseTOML

	ErrInvalidArgument  = errspkg.ErrInvalidArgument
	ErrEntityNotFound   = errspkg.ErrEntityNotFound
	ErrDisposed         = errspkg.ErrDisposed
	ErrConcurrentWait   = errspkg.ErrConcurrentWait
	ErrSchemaMismatch   = errspkg.ErrSchemaMismatch
	ErrConfigRequired   = errspkg.ErrConfigRequired
	ErrUnknownTransport = errspkg.ErrUnknownTransport
	KindOf              = errspkg.Kind

	DefaultTransportRegistry = transport.DefaultRegistry
	NewTransportRegistry     = transport.NewRegistry
	RegisterTransport        = transport.Register
	GetCapabilities          = transport.GetCapabilities

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal
)

// InlineConfig turns a YAML document into a configuration source accepted by
// NewConnector.
func InlineConfig(yaml string) string {
	return configpkg.InlinePrefix + yaml
}

// SampleAs decodes s into a new T. It fails with ErrSchemaMismatch when the
// sample does not fit T.
func SampleAs[T any](s *Sample) (T, error) {
	return runtimepkg.SampleAs[T](s)
}

// SampleNumber reads a numeric field of s as T, saturating at the bounds of T.
func SampleNumber[T Number](s *Sample, field string) (T, error) {
	return runtimepkg.SampleNumber[T](s, field)
}

// NewEntryServiceLogger adapts a structured entry logger such as a logrus
// entry.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
