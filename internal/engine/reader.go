package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/connector/internal/runtime/errors"
	"github.com/drblury/connector/internal/runtime/jsoncodec"
	"github.com/drblury/connector/internal/runtime/logging"
	"github.com/drblury/connector/internal/runtime/metadata"
	"github.com/drblury/connector/transport"
)

type sample struct {
	data *DynamicData
	info metadata.SampleInfo
	read bool
}

// Reader caches the samples published on one topic. Arrivals are queued until
// taken; Read and Take expose a snapshot of the queue through the accessor
// methods, addressed by index.
type Reader struct {
	name      string
	topic     string
	wireTopic string
	schema    *Schema
	depth     int
	owner     *Participant
	logger    logging.ServiceLogger

	mu    sync.Mutex
	queue []*sample
	cache []*sample

	handles atomic.Int32
}

func newReader(p *Participant, name, topic string, domainID int, schema *Schema, depth int) *Reader {
	return &Reader{
		name:      name,
		topic:     topic,
		wireTopic: transport.TopicName(domainID, topic),
		schema:    schema,
		depth:     depth,
		owner:     p,
		logger:    p.logger.With(logging.LogFields{"reader": name, "topic": topic}),
	}
}

// Name returns the qualified "Subscriber::Reader" name.
func (r *Reader) Name() string { return r.name }

// Topic returns the topic the reader is subscribed to.
func (r *Reader) Topic() string { return r.topic }

func (r *Reader) pump(ctx context.Context, msgs <-chan *message.Message) {
	defer r.owner.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.receive(msg)
			msg.Ack()
		}
	}
}

func (r *Reader) receive(msg *message.Message) {
	info := metadata.InfoFromMessage(msg)
	if info.TypeName != "" && info.TypeName != r.schema.Name {
		r.logger.Error("dropping sample of foreign type", errspkg.ErrSchemaMismatch, logging.LogFields{
			"type":      info.TypeName,
			"sample_id": msg.UUID,
		})
		return
	}

	s := &sample{info: info}
	if info.ValidData {
		var obj map[string]any
		if err := jsoncodec.Unmarshal(msg.Payload, &obj); err != nil {
			r.logger.Error("dropping undecodable sample", err, logging.LogFields{"sample_id": msg.UUID})
			return
		}
		s.data = NewDynamicData(r.schema)
		if ignored := s.data.Merge(obj); len(ignored) > 0 {
			r.logger.Debug("sample fields ignored", logging.LogFields{"sample_id": msg.UUID, "fields": ignored})
		}
	}

	r.mu.Lock()
	r.queue = append(r.queue, s)
	if r.depth > 0 && len(r.queue) > r.depth {
		r.queue = r.queue[len(r.queue)-r.depth:]
	}
	r.mu.Unlock()

	r.owner.notify()
}

// Read exposes every queued sample and marks them read. The samples stay
// queued for a later Take.
func (r *Reader) Read() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = append(r.cache[:0:0], r.queue...)
	for _, s := range r.queue {
		s.read = true
	}
}

// Take exposes every queued sample and removes them from the queue.
func (r *Reader) Take() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.queue {
		s.read = true
	}
	r.cache = r.queue
	r.queue = nil
}

// HasUnread reports whether a queued sample has not been read yet.
func (r *Reader) HasUnread() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.queue {
		if !s.read {
			return true
		}
	}
	return false
}

// Len is the number of samples exposed by the last Read or Take.
func (r *Reader) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}

func (r *Reader) at(i int) (*sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.cache) {
		return nil, fmt.Errorf("%w: sample index %d out of range [0,%d)", errspkg.ErrInvalidArgument, i, len(r.cache))
	}
	return r.cache[i], nil
}

// Number returns a numeric field of sample i, or 0.
func (r *Reader) Number(i int, path string) float64 {
	s, err := r.at(i)
	if err != nil || s.data == nil {
		return 0
	}
	v, _ := s.data.Number(path)
	return v
}

// Bool returns a boolean field of sample i, or false.
func (r *Reader) Bool(i int, path string) bool {
	s, err := r.at(i)
	if err != nil || s.data == nil {
		return false
	}
	v, _ := s.data.Bool(path)
	return v
}

// String returns a string field of sample i, or "".
func (r *Reader) String(i int, path string) string {
	s, err := r.at(i)
	if err != nil || s.data == nil {
		return ""
	}
	v, _ := s.data.String(path)
	return v
}

// JSON encodes sample i with every member present. Samples without valid data
// encode the type defaults.
func (r *Reader) JSON(i int) ([]byte, error) {
	s, err := r.at(i)
	if err != nil {
		return nil, err
	}
	if s.data == nil {
		return NewDynamicData(r.schema).MarshalJSON()
	}
	return s.data.MarshalJSON()
}

// Info returns the sample info of sample i.
func (r *Reader) Info(i int) (metadata.SampleInfo, error) {
	s, err := r.at(i)
	if err != nil {
		return metadata.SampleInfo{}, err
	}
	return s.info, nil
}

// Release drops one handle obtained from Participant.Reader.
func (r *Reader) Release() {
	if r.handles.Add(-1) < 0 {
		r.handles.Store(0)
	}
}

// Handles is the number of outstanding handles.
func (r *Reader) Handles() int { return int(r.handles.Load()) }
