package runtime

import (
	"math"
	"reflect"

	"github.com/drblury/connector/internal/engine"
	"github.com/drblury/connector/internal/runtime/jsoncodec"
	"github.com/drblury/connector/internal/runtime/metadata"
)

// LooseFields reads single fields. Missing fields and fields of another type
// yield the type default; the only error is use after dispose.
type LooseFields interface {
	GetNumber(field string) (float64, error)
	GetInt(field string) (int64, error)
	GetBool(field string) (bool, error)
	GetString(field string) (string, error)
}

// StrictDecoder decodes the whole sample and reports type conflicts with
// ErrSchemaMismatch.
type StrictDecoder interface {
	GetAs(target any) error
	GetAsObject() (map[string]any, error)
}

var (
	_ LooseFields   = (*Sample)(nil)
	_ StrictDecoder = (*Sample)(nil)
)

// Sample is a position in the samples exposed by an Input. Every accessor
// reads the position again, so after a new Read or Take the same Sample
// refers to different data.
type Sample struct {
	input *Input
	index int
}

// Index returns the position of the sample.
func (s *Sample) Index() int { return s.index }

// IsValid reports whether the sample carries data, as opposed to an
// instance lifecycle notification.
func (s *Sample) IsValid() (bool, error) {
	info, err := s.Info()
	if err != nil {
		return false, err
	}
	return info.ValidData, nil
}

// Info returns the sample info.
func (s *Sample) Info() (metadata.SampleInfo, error) {
	if err := s.input.usable("sample info"); err != nil {
		return metadata.SampleInfo{}, err
	}
	return s.input.handle.Get().Info(s.index)
}

// GetNumber returns a numeric field, or 0.
func (s *Sample) GetNumber(field string) (float64, error) {
	if err := s.input.usable("get number"); err != nil {
		return 0, err
	}
	return s.input.handle.Get().Number(s.index, field), nil
}

// GetInt returns a numeric field truncated to an integer, or 0.
func (s *Sample) GetInt(field string) (int64, error) {
	v, err := s.GetNumber(field)
	return engine.ClampInt(64, v), err
}

// GetBool returns a boolean field, or false.
func (s *Sample) GetBool(field string) (bool, error) {
	if err := s.input.usable("get bool"); err != nil {
		return false, err
	}
	return s.input.handle.Get().Bool(s.index, field), nil
}

// GetString returns a string field, or "".
func (s *Sample) GetString(field string) (string, error) {
	if err := s.input.usable("get string"); err != nil {
		return "", err
	}
	return s.input.handle.Get().String(s.index, field), nil
}

// JSON returns the sample encoded with every member present.
func (s *Sample) JSON() ([]byte, error) {
	if err := s.input.usable("get json"); err != nil {
		return nil, err
	}
	return s.input.handle.Get().JSON(s.index)
}

// GetAs decodes the sample into target, a pointer to a struct, map or
// protobuf message. Members missing from target are ignored; members of
// target missing from the sample keep their zero value.
func (s *Sample) GetAs(target any) error {
	data, err := s.JSON()
	if err != nil {
		return err
	}
	return jsoncodec.DecodeStrict(data, target)
}

// GetAsObject decodes the sample into a generic JSON object.
func (s *Sample) GetAsObject() (map[string]any, error) {
	var obj map[string]any
	if err := s.GetAs(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// SampleAs decodes s into a new T. Pointer types, such as protobuf messages,
// are allocated before decoding.
func SampleAs[T any](s *Sample) (T, error) {
	var out T
	if rt := reflect.TypeFor[T](); rt.Kind() == reflect.Pointer {
		out = reflect.New(rt.Elem()).Interface().(T)
		return out, s.GetAs(out)
	}
	return out, s.GetAs(&out)
}

// Number is the set of fixed-width numeric types SampleNumber converts to.
type Number interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// SampleNumber reads a numeric field as T, saturating at the bounds of T.
// Like GetNumber it yields 0 for missing or non-numeric fields.
func SampleNumber[T Number](s *Sample, field string) (T, error) {
	v, err := s.GetNumber(field)
	if err != nil {
		return 0, err
	}
	var out T
	switch p := any(&out).(type) {
	case *int8:
		*p = int8(engine.ClampInt(8, v))
	case *int16:
		*p = int16(engine.ClampInt(16, v))
	case *int32:
		*p = int32(engine.ClampInt(32, v))
	case *int64:
		*p = engine.ClampInt(64, v)
	case *uint8:
		*p = uint8(engine.ClampUint(8, v))
	case *uint16:
		*p = uint16(engine.ClampUint(16, v))
	case *uint32:
		*p = uint32(engine.ClampUint(32, v))
	case *uint64:
		*p = engine.ClampUint(64, v)
	case *float32:
		*p = float32(math.Max(-math.MaxFloat32, math.Min(math.MaxFloat32, v)))
	case *float64:
		*p = v
	}
	return out, nil
}
