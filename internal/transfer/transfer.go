// Package transfer imports and exports option sets as JSON, YAML or TOML files
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/value"
)

// Format is a supported file format
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var (
	// ErrUnsupportedFormat is returned for a file extension other than .json, .yaml, .yml or .toml
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrNotRepresentable is returned when a value cannot be written in the chosen format
	ErrNotRepresentable = errors.New("value not representable")
)

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Import reads a file whose top level maps option keys to values.
// Strings become string options; everything else becomes JSON.
func Import(fs adapter.FileSystem, path string) (map[string]value.Value, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	opts, err := Decode(format, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return opts, nil
}

// Decode parses data in the given format
func Decode(format Format, data []byte) (map[string]value.Value, error) {
	switch format {
	case FormatJSON:
		doc, err := value.Parse(data)
		if err != nil {
			return nil, err
		}
		fields, ok := doc.AsObject()
		if !ok {
			return nil, fmt.Errorf("top level must be an object, got %s", doc.Kind())
		}
		out := make(map[string]value.Value, len(fields))
		for k, j := range fields {
			out[k] = value.FromJSON(j)
		}
		return out, nil

	case FormatYAML:
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return fromNative(raw)

	case FormatTOML:
		var raw map[string]any
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, err
		}
		return fromNative(raw)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func fromNative(raw map[string]any) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(raw))
	for k, item := range raw {
		v, err := value.Of(item)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Export writes opts to path in the format chosen by its extension
func Export(fs adapter.FileSystem, path string, opts map[string]value.Value) (err error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	data, err := Encode(format, opts)
	if err != nil {
		return err
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Encode renders opts in the given format with keys in sorted order
func Encode(format Format, opts map[string]value.Value) ([]byte, error) {
	if opts == nil {
		opts = map[string]value.Value{}
	}

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(opts, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil

	case FormatYAML:
		native, err := toNative(opts, false)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(native); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	case FormatTOML:
		native, err := toNative(opts, true)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(native); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// toNative converts values to data the YAML and TOML encoders write as native scalars
func toNative(opts map[string]value.Value, rejectNull bool) (map[string]any, error) {
	out := make(map[string]any, len(opts))
	for k, v := range opts {
		if s, ok := v.AsString(); ok {
			out[k] = s
			continue
		}
		j, _ := v.JSON()
		native, err := jsonToNative(j, rejectNull)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", k, err)
		}
		out[k] = native
	}
	return out, nil
}

func jsonToNative(j value.JSON, rejectNull bool) (any, error) {
	switch j.Kind() {
	case value.KindNull:
		if rejectNull {
			return nil, fmt.Errorf("%w: null", ErrNotRepresentable)
		}
		return nil, nil
	case value.KindBool:
		b, _ := j.AsBool()
		return b, nil
	case value.KindNumber:
		n, _ := j.AsNumber()
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number %s", ErrNotRepresentable, n)
		}
		return f, nil
	case value.KindString:
		s, _ := j.AsString()
		return s, nil
	case value.KindArray:
		items, _ := j.AsArray()
		out := make([]any, len(items))
		for i, item := range items {
			native, err := jsonToNative(item, rejectNull)
			if err != nil {
				return nil, err
			}
			out[i] = native
		}
		return out, nil
	default:
		fields, _ := j.AsObject()
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			native, err := jsonToNative(item, rejectNull)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = native
		}
		return out, nil
	}
}
