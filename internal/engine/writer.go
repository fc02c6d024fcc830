package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/connector/internal/runtime/errors"
	"github.com/drblury/connector/internal/runtime/ids"
	"github.com/drblury/connector/internal/runtime/jsoncodec"
	"github.com/drblury/connector/internal/runtime/logging"
	"github.com/drblury/connector/internal/runtime/metadata"
	"github.com/drblury/connector/transport"
)

// Writer owns the instance published on one topic.
type Writer struct {
	name      string
	topic     string
	wireTopic string
	schema    *Schema
	owner     *Participant
	logger    logging.ServiceLogger

	mu       sync.Mutex
	instance *DynamicData

	handles atomic.Int32
}

func newWriter(p *Participant, name, topic string, domainID int, schema *Schema) *Writer {
	return &Writer{
		name:      name,
		topic:     topic,
		wireTopic: transport.TopicName(domainID, topic),
		schema:    schema,
		owner:     p,
		logger:    p.logger.With(logging.LogFields{"writer": name, "topic": topic}),
		instance:  NewDynamicData(schema),
	}
}

// Name returns the qualified "Publisher::Writer" name.
func (w *Writer) Name() string { return w.name }

// Topic returns the topic the writer publishes on.
func (w *Writer) Topic() string { return w.topic }

// TypeName returns the name of the published type.
func (w *Writer) TypeName() string { return w.schema.Name }

func (w *Writer) dropped(path string, value any) {
	w.logger.Debug("instance field not set", logging.LogFields{"field": path, "value": value})
}

// SetNumber sets a field of the instance. Values that do not fit are dropped.
func (w *Writer) SetNumber(path string, v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.instance.SetNumber(path, v) {
		w.dropped(path, v)
	}
}

// SetBool sets a field of the instance. Values that do not fit are dropped.
func (w *Writer) SetBool(path string, v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.instance.SetBool(path, v) {
		w.dropped(path, v)
	}
}

// SetString sets a field of the instance. Values that do not fit are dropped.
func (w *Writer) SetString(path string, v string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.instance.SetString(path, v) {
		w.dropped(path, v)
	}
}

// SetFields merges a generic JSON object into the instance.
func (w *Writer) SetFields(obj map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ignored := w.instance.Merge(obj); len(ignored) > 0 {
		w.logger.Debug("instance fields ignored", logging.LogFields{"fields": ignored})
	}
}

// SetJSON merges a JSON object into the instance.
func (w *Writer) SetJSON(data []byte) error {
	var obj map[string]any
	if err := jsoncodec.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("%w: instance JSON: %w", errspkg.ErrInvalidArgument, err)
	}
	if obj == nil {
		return fmt.Errorf("%w: instance JSON must be an object", errspkg.ErrInvalidArgument)
	}
	w.SetFields(obj)
	return nil
}

// Clear resets the instance to the type defaults.
func (w *Writer) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.instance.Clear()
}

// Snapshot encodes the current instance.
func (w *Writer) Snapshot() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.instance.MarshalJSON()
}

// Write publishes the current instance.
func (w *Writer) Write(ctx context.Context) error {
	w.mu.Lock()
	payload, err := w.instance.MarshalJSON()
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode instance: %w", err)
	}
	return w.publish(ctx, payload, true, metadata.InstanceAlive)
}

// DisposeInstance publishes a sample without valid data that marks the
// instance identified by the key fields as disposed.
func (w *Writer) DisposeInstance(ctx context.Context) error {
	w.mu.Lock()
	payload, err := jsoncodec.Marshal(w.instance.KeyMap())
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode instance key: %w", err)
	}
	return w.publish(ctx, payload, false, metadata.InstanceDisposed)
}

func (w *Writer) publish(ctx context.Context, payload []byte, valid bool, state metadata.InstanceState) error {
	now := time.Now()
	info := metadata.SampleInfo{
		ValidData:       valid,
		SourceTimestamp: now,
		Writer:          w.name,
		InstanceState:   state,
		TypeName:        w.schema.Name,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		info.TraceID = sc.TraceID().String()
	}

	msg := message.NewMessage(ids.NewSampleID(now), payload)
	msg.Metadata = metadata.ToWatermill(metadata.FromInfo(info))
	msg.SetContext(ctx)

	if err := w.owner.publisher.Publish(w.wireTopic, msg); err != nil {
		w.logger.Error("publish failed", err, logging.LogFields{"sample_id": msg.UUID})
		return fmt.Errorf("publish %s: %w", w.name, err)
	}
	return nil
}

// Release drops one handle obtained from Participant.Writer.
func (w *Writer) Release() {
	if w.handles.Add(-1) < 0 {
		w.handles.Store(0)
	}
}

// Handles is the number of outstanding handles.
func (w *Writer) Handles() int { return int(w.handles.Load()) }
