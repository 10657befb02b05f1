package transfer_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/mocks"
	"github.com/feral-file/ff-options/internal/transfer"
	"github.com/feral-file/ff-options/internal/value"
)

// bufferFile collects what Export writes
type bufferFile struct {
	bytes.Buffer
	closed bool
}

func (f *bufferFile) Close() error {
	f.closed = true
	return nil
}

func sampleOptions() map[string]value.Value {
	return map[string]value.Value{
		"site_name": value.String("Gallery"),
		"numeric":   value.String("42"),
		"max_items": value.MustOf(25),
		"ratio":     value.MustOf(0.75),
		"enabled":   value.MustOf(true),
		"tags":      value.MustOf([]any{"art", "nft"}),
		"theme": value.MustOf(map[string]any{
			"primary": "#000000",
			"fonts":   []any{"Inter", "Mono"},
			"spacing": map[string]any{"base": 4},
		}),
	}
}

func assertSameOptions(t *testing.T, expected, actual map[string]value.Value) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for k, v := range expected {
		got, ok := actual[k]
		require.True(t, ok, "missing %s", k)
		assert.True(t, v.Equal(got), "%s: expected %v, got %v", k, v.Interface(), got.Interface())
	}
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{"options.json", "options.yaml", "options.yml", "options.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			fs := adapter.NewFileSystem()

			require.NoError(t, transfer.Export(fs, path, sampleOptions()))

			imported, err := transfer.Import(fs, path)
			require.NoError(t, err)
			assertSameOptions(t, sampleOptions(), imported)
		})
	}
}

func TestImport(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		expected map[string]value.Value
	}{
		{
			name:    "json",
			file:    "o.json",
			content: `{"a": "text", "b": {"c": [1, 2]}, "d": null}`,
			expected: map[string]value.Value{
				"a": value.String("text"),
				"b": value.MustOf(map[string]any{"c": []any{1, 2}}),
				"d": value.FromJSON(value.Null()),
			},
		},
		{
			name: "yaml",
			file: "o.yaml",
			content: `
a: text
b:
  c: [1, 2]
d: ~
`,
			expected: map[string]value.Value{
				"a": value.String("text"),
				"b": value.MustOf(map[string]any{"c": []any{1, 2}}),
				"d": value.FromJSON(value.Null()),
			},
		},
		{
			name: "toml",
			file: "o.TOML",
			content: `
a = "text"

[b]
c = [1, 2]
`,
			expected: map[string]value.Value{
				"a": value.String("text"),
				"b": value.MustOf(map[string]any{"c": []any{1, 2}}),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			fs := mocks.NewMockFileSystem(ctrl)
			fs.EXPECT().ReadFile(tt.file).Return([]byte(tt.content), nil)

			got, err := transfer.Import(fs, tt.file)
			require.NoError(t, err)
			assertSameOptions(t, tt.expected, got)
		})
	}
}

func TestImport_Errors(t *testing.T) {
	t.Run("unsupported extension", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		_, err := transfer.Import(mocks.NewMockFileSystem(ctrl), "options.ini")
		assert.ErrorIs(t, err, transfer.ErrUnsupportedFormat)
	})

	t.Run("read failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := mocks.NewMockFileSystem(ctrl)
		fs.EXPECT().ReadFile("o.json").Return(nil, os.ErrNotExist)

		_, err := transfer.Import(fs, "o.json")
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("json top level must be an object", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := mocks.NewMockFileSystem(ctrl)
		fs.EXPECT().ReadFile("o.json").Return([]byte(`[1, 2]`), nil)

		_, err := transfer.Import(fs, "o.json")
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := mocks.NewMockFileSystem(ctrl)
		fs.EXPECT().ReadFile("o.yaml").Return([]byte("a: [unterminated"), nil)

		_, err := transfer.Import(fs, "o.yaml")
		assert.Error(t, err)
	})
}

func TestExport(t *testing.T) {
	t.Run("json is indented with sorted keys", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := mocks.NewMockFileSystem(ctrl)
		file := &bufferFile{}
		fs.EXPECT().Create("out.json").Return(file, nil)

		err := transfer.Export(fs, "out.json", map[string]value.Value{
			"b": value.MustOf(2),
			"a": value.String("1"),
		})
		require.NoError(t, err)
		assert.True(t, file.closed)
		assert.Equal(t, "{\n  \"a\": \"1\",\n  \"b\": 2\n}\n", file.String())
	})

	t.Run("yaml writes numbers as numbers", func(t *testing.T) {
		data, err := transfer.Encode(transfer.FormatYAML, map[string]value.Value{
			"count": value.MustOf(3),
			"label": value.String("3"),
		})
		require.NoError(t, err)
		assert.Equal(t, "count: 3\nlabel: \"3\"\n", string(data))
	})

	t.Run("toml cannot hold null", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := mocks.NewMockFileSystem(ctrl)

		err := transfer.Export(fs, "out.toml", map[string]value.Value{
			"nested": value.MustOf(map[string]any{"gone": nil}),
		})
		assert.ErrorIs(t, err, transfer.ErrNotRepresentable)
	})

	t.Run("create failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fs := mocks.NewMockFileSystem(ctrl)
		fs.EXPECT().Create("out.yaml").Return(nil, errors.New("read-only file system"))

		err := transfer.Export(fs, "out.yaml", sampleOptions())
		assert.Error(t, err)
	})
}
