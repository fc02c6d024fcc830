package runtime

import (
	"github.com/drblury/connector/internal/runtime/jsoncodec"
)

// Instance stages the next sample of an Output. Setters accept unknown
// fields and mismatched values; the engine coerces what it can and drops the
// rest.
type Instance struct {
	output *Output
}

// SetNumber sets a numeric field. Paths may address nested members and
// sequence elements, such as "inner.z" or "list[2]".
func (i *Instance) SetNumber(field string, value float64) error {
	if err := i.output.usable("set number"); err != nil {
		return err
	}
	i.output.handle.Get().SetNumber(field, value)
	return nil
}

// SetInt sets an integer field.
func (i *Instance) SetInt(field string, value int64) error {
	return i.SetNumber(field, float64(value))
}

// SetBool sets a boolean field.
func (i *Instance) SetBool(field string, value bool) error {
	if err := i.output.usable("set bool"); err != nil {
		return err
	}
	i.output.handle.Get().SetBool(field, value)
	return nil
}

// SetString sets a string field.
func (i *Instance) SetString(field string, value string) error {
	if err := i.output.usable("set string"); err != nil {
		return err
	}
	i.output.handle.Get().SetString(field, value)
	return nil
}

// SetValuesFrom copies the fields of value into the instance. value may be a
// struct, a map or a protobuf message; fields it does not carry keep their
// current values.
func (i *Instance) SetValuesFrom(value any) error {
	if err := i.output.usable("set values"); err != nil {
		return err
	}
	obj, err := jsoncodec.ToObject(value)
	if err != nil {
		return err
	}
	i.output.handle.Get().SetFields(obj)
	return nil
}

// Clear resets every field to its type default.
func (i *Instance) Clear() error {
	if err := i.output.usable("clear"); err != nil {
		return err
	}
	i.output.handle.Get().Clear()
	return nil
}
