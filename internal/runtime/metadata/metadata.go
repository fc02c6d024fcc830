// Package metadata describes the headers carried alongside every sample on
// the wire and the sample info decoded from them.
package metadata

import (
	"strconv"
	"time"

	"github.com/drblury/connector/internal/runtime/ids"
)

// Metadata represents the headers carried alongside a sample.
type Metadata map[string]string

const (
	KeyValidData       = "connector_valid_data"
	KeySourceTimestamp = "connector_source_timestamp"
	KeyWriter          = "connector_writer"
	KeyInstanceState   = "connector_instance_state"
	KeyTypeName        = "connector_type"
	KeyTraceID         = "connector_trace_id"
	KeySpanID          = "connector_span_id"
)

// InstanceState is the lifecycle state of the instance a sample belongs to.
type InstanceState string

const (
	InstanceAlive    InstanceState = "ALIVE"
	InstanceDisposed InstanceState = "NOT_ALIVE_DISPOSED"
)

// SampleInfo is the per-sample information that travels next to the data.
type SampleInfo struct {
	Identity        string        `json:"identity"`
	ValidData       bool          `json:"valid_data"`
	SourceTimestamp time.Time     `json:"source_timestamp"`
	Writer          string        `json:"writer"`
	InstanceState   InstanceState `json:"instance_state"`
	TypeName        string        `json:"type"`
	TraceID         string        `json:"trace_id,omitempty"`
}

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}
	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a copy containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a copy containing the supplied entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// FromInfo encodes sample info as headers. The identity is carried as the
// message id, not as a header.
func FromInfo(info SampleInfo) Metadata {
	md := New(
		KeyValidData, strconv.FormatBool(info.ValidData),
		KeyWriter, info.Writer,
		KeyInstanceState, string(info.InstanceState),
		KeyTypeName, info.TypeName,
	)
	if !info.SourceTimestamp.IsZero() {
		md[KeySourceTimestamp] = info.SourceTimestamp.UTC().Format(time.RFC3339Nano)
	}
	if info.TraceID != "" {
		md[KeyTraceID] = info.TraceID
	}
	return md
}

// Info decodes sample info from headers. A missing valid-data header means
// the sample carries data; a missing timestamp falls back to the time encoded
// in the identity.
func (m Metadata) Info(identity string) SampleInfo {
	info := SampleInfo{
		Identity:      identity,
		ValidData:     true,
		Writer:        m[KeyWriter],
		InstanceState: InstanceAlive,
		TypeName:      m[KeyTypeName],
		TraceID:       m[KeyTraceID],
	}
	if v, ok := m[KeyValidData]; ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			info.ValidData = parsed
		}
	}
	if v := m[KeyInstanceState]; v != "" {
		info.InstanceState = InstanceState(v)
	}
	if ts, err := time.Parse(time.RFC3339Nano, m[KeySourceTimestamp]); err == nil {
		info.SourceTimestamp = ts
	} else if ts, ok := ids.Time(identity); ok {
		info.SourceTimestamp = ts
	}
	return info
}
