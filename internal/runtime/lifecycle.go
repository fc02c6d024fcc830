package runtime

import (
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/connector/internal/runtime/errors"
)

// disposable is implemented by every entity whose disposal invalidates the
// entities derived from it.
type disposable interface {
	Disposed() bool
}

// lifecycle is the disposed flag shared by connectors, inputs and outputs.
// It flips false to true once.
type lifecycle struct {
	disposed atomic.Bool
}

func (l *lifecycle) Disposed() bool { return l.disposed.Load() }

// markDisposed reports whether this call performed the transition.
func (l *lifecycle) markDisposed() bool {
	return l.disposed.CompareAndSwap(false, true)
}

// checkUsable fails with ErrDisposed when any entity of chain is disposed.
// Chains are ordered from the entity itself up to its root.
func checkUsable(op, entity string, chain ...disposable) error {
	for _, d := range chain {
		if d.Disposed() {
			return errspkg.Wrap(errspkg.ErrDisposed, op, entity)
		}
	}
	return nil
}

// nativeHandle owns one engine resource and releases it once.
type nativeHandle[T any] struct {
	value    T
	release  func(T) error
	once     sync.Once
	released atomic.Bool
	err      error
}

func newNativeHandle[T any](value T, release func(T) error) *nativeHandle[T] {
	return &nativeHandle[T]{value: value, release: release}
}

// Get returns the resource.
func (h *nativeHandle[T]) Get() T { return h.value }

// Valid reports whether the resource has not been released.
func (h *nativeHandle[T]) Valid() bool { return !h.released.Load() }

// Release frees the resource. Later calls return the first result.
func (h *nativeHandle[T]) Release() error {
	h.once.Do(func() {
		h.released.Store(true)
		if h.release != nil {
			h.err = h.release(h.value)
		}
	})
	return h.err
}
