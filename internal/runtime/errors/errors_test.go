package errors

import (
	sterrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrInvalidArgument", ErrInvalidArgument, "connector: invalid argument"},
		{"ErrEntityNotFound", ErrEntityNotFound, "connector: entity not found"},
		{"ErrDisposed", ErrDisposed, "connector: entity disposed"},
		{"ErrConcurrentWait", ErrConcurrentWait, "connector: concurrent wait"},
		{"ErrSchemaMismatch", ErrSchemaMismatch, "connector: schema mismatch"},
		{"ErrConfigRequired", ErrConfigRequired, "connector: configuration is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"plain", sterrors.New("boom"), KindUnknown},
		{"wrapped disposed", fmt.Errorf("read: %w", ErrDisposed), KindDisposed},
		{"wrap helper", Wrap(ErrEntityNotFound, "get input", "MySubscriber::MySquareReader"), KindEntityNotFound},
		{"schema", fmt.Errorf("%w: color", ErrSchemaMismatch), KindSchemaMismatch},
		{"wait", ErrConcurrentWait, KindConcurrentWait},
		{"argument", Wrap(ErrInvalidArgument, "wait", ""), KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "UseAfterDispose", KindDisposed.String())
	assert.Equal(t, "EntityResolutionError", KindEntityNotFound.String())
	assert.Equal(t, "Unknown", ErrorKind(42).String())
}

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrap(ErrDisposed, "take", "MyReader")
	assert.ErrorIs(t, err, ErrDisposed)
	assert.Equal(t, `connector: entity disposed: take "MyReader"`, err.Error())
}

func TestConfigValidationError(t *testing.T) {
	inner := sterrors.New("missing participant domain")
	err := ConfigValidationError{Err: inner}

	assert.Equal(t, "connector: invalid configuration: missing participant domain", err.Error())
	assert.ErrorIs(t, err, inner)
}
