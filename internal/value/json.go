package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/gowebpki/jcs"
)

// Kind identifies which variant a JSON value holds
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON type name of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// JSON is a recursive JSON document: null, boolean, number, string, array or object.
// The zero value is null. Numbers keep their textual form so that integers
// larger than 2^53 survive a round trip.
type JSON struct {
	kind   Kind
	b      bool
	num    json.Number
	str    string
	items  []JSON
	fields map[string]JSON
}

// Null returns the JSON null value
func Null() JSON {
	return JSON{}
}

// Bool returns a JSON boolean
func Bool(b bool) JSON {
	return JSON{kind: KindBool, b: b}
}

// Number returns a JSON number from its literal form
func Number(n json.Number) JSON {
	return JSON{kind: KindNumber, num: n}
}

// Int returns a JSON number holding an integer
func Int(i int64) JSON {
	return Number(json.Number(strconv.FormatInt(i, 10)))
}

// Float returns a JSON number holding a float. NaN and infinities cannot be
// encoded and fail on MarshalJSON.
func Float(f float64) JSON {
	return Number(json.Number(strconv.FormatFloat(f, 'g', -1, 64)))
}

// Str returns a JSON string
func Str(s string) JSON {
	return JSON{kind: KindString, str: s}
}

// Array returns a JSON array of the given items
func Array(items ...JSON) JSON {
	if items == nil {
		items = []JSON{}
	}
	return JSON{kind: KindArray, items: items}
}

// Object returns a JSON object of the given fields
func Object(fields map[string]JSON) JSON {
	if fields == nil {
		fields = map[string]JSON{}
	}
	return JSON{kind: KindObject, fields: fields}
}

// Kind reports the variant held by j
func (j JSON) Kind() Kind {
	return j.kind
}

// IsNull reports whether j is null
func (j JSON) IsNull() bool {
	return j.kind == KindNull
}

func (j JSON) AsBool() (bool, bool) {
	return j.b, j.kind == KindBool
}

func (j JSON) AsNumber() (json.Number, bool) {
	return j.num, j.kind == KindNumber
}

func (j JSON) AsString() (string, bool) {
	return j.str, j.kind == KindString
}

func (j JSON) AsArray() ([]JSON, bool) {
	return j.items, j.kind == KindArray
}

func (j JSON) AsObject() (map[string]JSON, bool) {
	return j.fields, j.kind == KindObject
}

// Interface converts j to plain Go values: nil, bool, json.Number, string,
// []any and map[string]any.
func (j JSON) Interface() any {
	switch j.kind {
	case KindBool:
		return j.b
	case KindNumber:
		return j.num
	case KindString:
		return j.str
	case KindArray:
		out := make([]any, len(j.items))
		for i, item := range j.items {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(j.fields))
		for k, v := range j.fields {
			out[k] = v.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether j and other encode to the same canonical JSON (RFC 8785).
// Numbers compare by value, so 1 and 1.0 are equal.
func (j JSON) Equal(other JSON) bool {
	a, err := canonical(j)
	if err != nil {
		return false
	}
	b, err := canonical(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func canonical(j JSON) ([]byte, error) {
	raw, err := j.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// MarshalJSON implements json.Marshaler. Object keys are written in sorted order.
func (j JSON) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := j.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (j JSON) encode(buf *bytes.Buffer) error {
	switch j.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(j.b))
	case KindNumber:
		b, err := json.Marshal(j.num)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", string(j.num), err)
		}
		buf.Write(b)
	case KindString:
		b, err := json.Marshal(j.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range j.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		keys := make([]string, 0, len(j.fields))
		for k := range j.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := j.fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown JSON kind %d", uint8(j.kind))
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler
func (j *JSON) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

// Parse decodes a single JSON document. Trailing data after the document is an error.
func Parse(data []byte) (JSON, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return JSON{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return JSON{}, errors.New("unexpected data after JSON document")
	}

	return fromNative(raw)
}

// FromInterface converts any JSON-serialisable Go value into a JSON document
func FromInterface(v any) (JSON, error) {
	switch t := v.(type) {
	case JSON:
		return t, nil
	case Value:
		if j, ok := t.JSON(); ok {
			return j, nil
		}
		s, _ := t.AsString()
		return Str(s), nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return JSON{}, err
	}
	return Parse(raw)
}

func fromNative(v any) (JSON, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Float(t), nil
	case string:
		return Str(t), nil
	case []any:
		items := make([]JSON, len(t))
		for i, item := range t {
			parsed, err := fromNative(item)
			if err != nil {
				return JSON{}, err
			}
			items[i] = parsed
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]JSON, len(t))
		for k, item := range t {
			parsed, err := fromNative(item)
			if err != nil {
				return JSON{}, err
			}
			fields[k] = parsed
		}
		return Object(fields), nil
	default:
		return JSON{}, fmt.Errorf("unsupported JSON type %T", v)
	}
}
