// Package value models option values: either a plain string stored verbatim
// or a JSON document stored in its serialised form.
package value

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode is returned when a row flagged as JSON does not hold valid JSON
var ErrDecode = errors.New("failed to decode option value")

// Value is an option value. The zero value is the empty string.
type Value struct {
	json   JSON
	str    string
	isJSON bool
}

// String returns a string value, stored verbatim
func String(s string) Value {
	return Value{str: s}
}

// FromJSON returns a JSON value. A JSON string becomes a plain string value
// so that strings are never stored JSON-quoted.
func FromJSON(j JSON) Value {
	if s, ok := j.AsString(); ok {
		return String(s)
	}
	return Value{json: j, isJSON: true}
}

// Of converts a Go value: strings stay strings, everything else is converted to JSON
func Of(v any) (Value, error) {
	switch t := v.(type) {
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case JSON:
		return FromJSON(t), nil
	}

	j, err := FromInterface(v)
	if err != nil {
		return Value{}, fmt.Errorf("failed to convert %T to option value: %w", v, err)
	}
	return FromJSON(j), nil
}

// MustOf is like Of but panics on error
func MustOf(v any) Value {
	val, err := Of(v)
	if err != nil {
		panic(err)
	}
	return val
}

// IsJSON reports whether the value is stored JSON-encoded
func (v Value) IsJSON() bool {
	return v.isJSON
}

// AsString returns the string held by a string value
func (v Value) AsString() (string, bool) {
	return v.str, !v.isJSON
}

// JSON returns the document held by a JSON value
func (v Value) JSON() (JSON, bool) {
	return v.json, v.isJSON
}

// Interface returns the value as plain Go data
func (v Value) Interface() any {
	if v.isJSON {
		return v.json.Interface()
	}
	return v.str
}

// Equal reports whether both values hold the same variant and content
func (v Value) Equal(other Value) bool {
	if v.isJSON != other.isJSON {
		return false
	}
	if !v.isJSON {
		return v.str == other.str
	}
	return v.json.Equal(other.json)
}

// Encode returns the persisted form of the value and whether it is JSON-encoded
func (v Value) Encode() (string, bool, error) {
	if !v.isJSON {
		return v.str, false, nil
	}

	raw, err := v.json.MarshalJSON()
	if err != nil {
		return "", false, fmt.Errorf("failed to encode option value: %w", err)
	}
	return string(raw), true, nil
}

// Decode restores a value from its persisted form
func Decode(raw string, isJSON bool) (Value, error) {
	if !isJSON {
		return String(raw), nil
	}

	j, err := Parse([]byte(raw))
	if err != nil {
		return Value{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return FromJSON(j), nil
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isJSON {
		return v.json.MarshalJSON()
	}
	return json.Marshal(v.str)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	j, err := Parse(data)
	if err != nil {
		return err
	}
	*v = FromJSON(j)
	return nil
}
