// Package errors defines the error taxonomy shared by the connector core, the
// engine and the transports.
package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports a malformed argument detected before any
	// engine call, such as a negative timeout or an empty entity name.
	ErrInvalidArgument = sterrors.New("connector: invalid argument")
	// ErrEntityNotFound reports that a configuration, participant, input or
	// output could not be resolved.
	ErrEntityNotFound = sterrors.New("connector: entity not found")
	// ErrDisposed reports use of an entity (or one of its parents) after it
	// was disposed.
	ErrDisposed = sterrors.New("connector: entity disposed")
	// ErrConcurrentWait reports an overlapping wait on the same connector, or
	// a dispose attempted while a wait is outstanding.
	ErrConcurrentWait = sterrors.New("connector: concurrent wait")
	// ErrSchemaMismatch reports that sample contents cannot be decoded into
	// the requested shape.
	ErrSchemaMismatch = sterrors.New("connector: schema mismatch")

	ErrConfigRequired   = sterrors.New("connector: configuration is required")
	ErrUnknownTransport = sterrors.New("connector: unknown transport")
)

// ErrorKind classifies an error into the taxonomy above.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidArgument
	KindEntityNotFound
	KindDisposed
	KindConcurrentWait
	KindSchemaMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindEntityNotFound:
		return "EntityResolutionError"
	case KindDisposed:
		return "UseAfterDispose"
	case KindConcurrentWait:
		return "ConcurrencyViolation"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	default:
		return "Unknown"
	}
}

var kinds = []struct {
	sentinel error
	kind     ErrorKind
}{
	{ErrDisposed, KindDisposed},
	{ErrConcurrentWait, KindConcurrentWait},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrEntityNotFound, KindEntityNotFound},
	{ErrSchemaMismatch, KindSchemaMismatch},
}

// Kind returns the taxonomy kind of err, or KindUnknown when err wraps none of
// the connector sentinels.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if sterrors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindUnknown
}

// ConfigValidationError wraps every problem found while validating a
// configuration document.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("connector: invalid configuration: %v", e.Err)
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// Wrap annotates err with the operation and entity it concerns while keeping
// the sentinel reachable through errors.Is.
func Wrap(sentinel error, op, entity string) error {
	if entity == "" {
		return fmt.Errorf("%w: %s", sentinel, op)
	}
	return fmt.Errorf("%w: %s %q", sentinel, op, entity)
}
