package runtime

import (
	"fmt"
	"iter"

	errspkg "github.com/drblury/connector/internal/runtime/errors"
)

// SampleCollection is a live view over the samples an Input exposed with its
// last Read or Take. It holds no samples itself: every call asks the reader
// again, so the length changes after each Read or Take.
//
// A Take running concurrently with an iteration shifts the samples under it.
// The collection does not guard against that.
type SampleCollection struct {
	input *Input
}

// Len returns the number of exposed samples.
func (c *SampleCollection) Len() (int, error) {
	if err := c.input.usable("count samples"); err != nil {
		return 0, err
	}
	return c.input.handle.Get().Len(), nil
}

// At returns the sample at index i.
func (c *SampleCollection) At(i int) (*Sample, error) {
	n, err := c.Len()
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("%w: sample index %d out of range [0,%d)", errspkg.ErrInvalidArgument, i, n)
	}
	return &Sample{input: c.input, index: i}, nil
}

// All yields every exposed sample with its index. The length is read once
// when the iteration starts.
func (c *SampleCollection) All() iter.Seq2[*Sample, error] {
	return func(yield func(*Sample, error) bool) {
		n, err := c.Len()
		if err != nil {
			yield(nil, err)
			return
		}
		for i := range n {
			if !yield(&Sample{input: c.input, index: i}, nil) {
				return
			}
		}
	}
}

// Iterator returns a restartable cursor over the collection.
func (c *SampleCollection) Iterator() *SampleIterator {
	return &SampleIterator{collection: c}
}

// SampleIterator walks a SampleCollection:
//
//	it := input.Samples().Iterator()
//	for it.Next() {
//		s := it.Sample()
//	}
//	if err := it.Err(); err != nil { ... }
type SampleIterator struct {
	collection *SampleCollection
	started    bool
	count      int
	next       int
	current    *Sample
	err        error
}

// Next advances to the next sample. The first call reads the length.
func (it *SampleIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.started {
		it.started = true
		it.count, it.err = it.collection.Len()
		if it.err != nil {
			return false
		}
	}
	if it.next >= it.count {
		it.current = nil
		return false
	}
	it.current = &Sample{input: it.collection.input, index: it.next}
	it.next++
	return true
}

// Sample returns the current sample, or nil before Next or after the end.
func (it *SampleIterator) Sample() *Sample { return it.current }

// Err returns the error that stopped the iteration.
func (it *SampleIterator) Err() error { return it.err }

// Reset rewinds the iterator. The next call to Next reads the length again.
func (it *SampleIterator) Reset() {
	*it = SampleIterator{collection: it.collection}
}
