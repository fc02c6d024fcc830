// Package jsoncodec is the single JSON implementation used for sample
// payloads. Plain Go values go through sonic; protobuf messages go through
// protojson so generated types keep their canonical field names.
package jsoncodec

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	errspkg "github.com/drblury/connector/internal/runtime/errors"
)

var defaultConfig = sonic.ConfigStd

var (
	protoMarshal   = protojson.MarshalOptions{UseProtoNames: true}
	protoUnmarshal = protojson.UnmarshalOptions{DiscardUnknown: true}
)

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return defaultConfig.NewDecoder(r).Decode(v)
}

// MarshalValue serialises a user value that is about to be copied into an
// instance. Unset protobuf fields are omitted so they leave the instance
// untouched.
func MarshalValue(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return protoMarshal.Marshal(msg)
	}
	return Marshal(v)
}

// ToObject converts a user value into a generic JSON object. Values that do
// not serialise to an object are rejected with ErrInvalidArgument.
func ToObject(v any) (map[string]any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: value is nil", errspkg.ErrInvalidArgument)
	}
	data, err := MarshalValue(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrInvalidArgument, err)
	}
	var obj map[string]any
	if err := Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("%w: value of type %T is not an object: %w", errspkg.ErrInvalidArgument, v, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: value of type %T is nil", errspkg.ErrInvalidArgument, v)
	}
	return obj, nil
}

// DecodeStrict decodes data into target. Any type conflict between the
// payload and the target is reported as ErrSchemaMismatch; fields missing from
// the payload keep the target's zero value and unknown fields are ignored.
func DecodeStrict(data []byte, target any) error {
	if target == nil {
		return fmt.Errorf("%w: decode target is nil", errspkg.ErrInvalidArgument)
	}
	var err error
	if msg, ok := target.(proto.Message); ok {
		err = protoUnmarshal.Unmarshal(data, msg)
	} else {
		err = Unmarshal(data, target)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errspkg.ErrSchemaMismatch, err)
	}
	return nil
}
