package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/mocks"
	"github.com/feral-file/ff-options/internal/options"
	"github.com/feral-file/ff-options/internal/store"
	"github.com/feral-file/ff-options/internal/store/schema"
	"github.com/feral-file/ff-options/internal/value"
)

func execute(t *testing.T, s store.OptionStore, args ...string) (string, error) {
	t.Helper()
	a := &app{
		fs:      adapter.NewFileSystem(),
		options: options.New(s),
	}
	var out bytes.Buffer
	cmd := newRootCmd(a)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestGet(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("string printed verbatim", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetOption(gomock.Any(), "site_name").Return(&schema.Option{Key: "site_name", Value: "Gallery"}, nil)

		out, err := execute(t, s, "get", "site_name")
		require.NoError(t, err)
		assert.Equal(t, "Gallery\n", out)
	})

	t.Run("json output carries the row", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetOption(gomock.Any(), "limits").Return(&schema.Option{
			Key:         "limits",
			Value:       `{"max":3}`,
			IsJSON:      true,
			Autoload:    true,
			DateCreated: created,
			DateUpdated: created,
		}, nil)

		out, err := execute(t, s, "get", "limits", "-o", "json")
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"key": "limits",
			"value": {"max": 3},
			"is_json": true,
			"autoload": true,
			"date_created": "2025-03-01T10:00:00Z",
			"date_updated": "2025-03-01T10:00:00Z"
		}`, out)
	})

	t.Run("missing key fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetOption(gomock.Any(), "nope").Return(nil, store.ErrOptionNotFound)

		_, err := execute(t, s, "get", "nope")
		assert.ErrorIs(t, err, errNotFound)
	})

	t.Run("missing key with default", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetOption(gomock.Any(), "nope").Return(nil, store.ErrOptionNotFound)

		out, err := execute(t, s, "get", "nope", "--default", "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback\n", out)
	})

	t.Run("storage failure is not reported as missing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetOption(gomock.Any(), "k").Return(nil, store.ErrDataAccess)

		_, err := execute(t, s, "get", "k", "--default", "fallback")
		assert.ErrorIs(t, err, store.ErrDataAccess)
	})

	t.Run("undecodable row", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetOption(gomock.Any(), "k").Return(&schema.Option{Key: "k", Value: "{broken", IsJSON: true}, nil)

		_, err := execute(t, s, "get", "k")
		assert.ErrorIs(t, err, value.ErrDecode)
	})
}

func TestSet(t *testing.T) {
	t.Run("string by default", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().Set(gomock.Any(), "count", value.String("42"), false).Return(nil)

		_, err := execute(t, s, "set", "count", "42")
		require.NoError(t, err)
	})

	t.Run("json with autoload", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().Set(gomock.Any(), "count", gomock.Any(), true).DoAndReturn(
			func(_ context.Context, _ string, v value.Value, _ bool) error {
				assert.True(t, v.Equal(value.MustOf(42)))
				return nil
			})

		_, err := execute(t, s, "set", "count", "42", "--json", "--autoload")
		require.NoError(t, err)
	})

	t.Run("invalid json never reaches the store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)

		_, err := execute(t, s, "set", "k", "{nope", "--json")
		assert.Error(t, err)
	})

	t.Run("store failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().Set(gomock.Any(), "", value.String("v"), false).Return(store.ErrInvalidKey)

		_, err := execute(t, s, "set", "", "v")
		assert.ErrorIs(t, err, store.ErrInvalidKey)
	})
}

func TestDeleteAndExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockOptionStore(ctrl)
	s.EXPECT().Delete(gomock.Any(), "present").Return(true, nil)
	s.EXPECT().Delete(gomock.Any(), "absent").Return(false, nil)
	s.EXPECT().Exists(gomock.Any(), "present").Return(true, nil)
	s.EXPECT().Exists(gomock.Any(), "broken").Return(false, errors.New("connection reset"))

	_, err := execute(t, s, "delete", "present")
	assert.NoError(t, err)

	_, err = execute(t, s, "delete", "absent")
	assert.ErrorIs(t, err, errNotFound)

	out, err := execute(t, s, "exists", "present")
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	_, err = execute(t, s, "exists", "broken")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	all := map[string]value.Value{
		"b_limits": value.MustOf(map[string]any{"max": 3}),
		"a_name":   value.String("Gallery"),
	}

	t.Run("table sorted by key", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetAll(gomock.Any(), (*bool)(nil)).Return(all, nil)

		out, err := execute(t, s, "list")
		require.NoError(t, err)
		assert.Equal(t, "KEY       TYPE    VALUE\na_name    string  Gallery\nb_limits  object  {\"max\":3}\n", out)
	})

	t.Run("autoload filter", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetAll(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, autoload *bool) (map[string]value.Value, error) {
				require.NotNil(t, autoload)
				assert.False(t, *autoload)
				return all, nil
			})

		out, err := execute(t, s, "list", "--autoload=false", "-o", "json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"a_name": "Gallery", "b_limits": {"max": 3}}`, out)
	})

	t.Run("read failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetAll(gomock.Any(), gomock.Any()).Return(nil, store.ErrDataAccess)

		_, err := execute(t, s, "list")
		assert.ErrorIs(t, err, store.ErrDataAccess)
	})
}

func TestImportExport(t *testing.T) {
	dir := t.TempDir()

	t.Run("import", func(t *testing.T) {
		path := filepath.Join(dir, "in.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: Gallery\nmax: 3\n"), 0o600))

		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().SetMultiple(gomock.Any(), gomock.Any(), true).DoAndReturn(
			func(_ context.Context, opts map[string]value.Value, _ bool) error {
				assert.True(t, opts["name"].Equal(value.String("Gallery")))
				assert.True(t, opts["max"].Equal(value.MustOf(3)))
				return nil
			})

		out, err := execute(t, s, "import", path, "--autoload")
		require.NoError(t, err)
		assert.Equal(t, "imported 2 options\n", out)
	})

	t.Run("partial import failure", func(t *testing.T) {
		path := filepath.Join(dir, "partial.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"ok": "1", "bad": "2"}`), 0o600))

		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().SetMultiple(gomock.Any(), gomock.Any(), false).Return(&store.MultiError{
			Failed: map[string]error{"bad": store.ErrDataAccess},
		})

		_, err := execute(t, s, "import", path)
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrDataAccess)
		assert.Contains(t, err.Error(), "imported 1 of 2 options")
	})

	t.Run("export", func(t *testing.T) {
		path := filepath.Join(dir, "out.toml")

		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetAll(gomock.Any(), (*bool)(nil)).Return(map[string]value.Value{
			"name": value.String("Gallery"),
		}, nil)

		out, err := execute(t, s, "export", path)
		require.NoError(t, err)
		assert.Equal(t, "exported 1 options\n", out)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "name = \"Gallery\"\n", string(data))
	})

	t.Run("failed read leaves the file alone", func(t *testing.T) {
		path := filepath.Join(dir, "keep.json")
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

		ctrl := gomock.NewController(t)
		s := mocks.NewMockOptionStore(ctrl)
		s.EXPECT().GetAll(gomock.Any(), gomock.Any()).Return(nil, store.ErrDataAccess)

		_, err := execute(t, s, "export", path)
		assert.ErrorIs(t, err, store.ErrDataAccess)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "{}\n", string(data))
	})

	t.Run("unsupported format", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		_, err := execute(t, mocks.NewMockOptionStore(ctrl), "export", filepath.Join(dir, "out.ini"))
		assert.Error(t, err)
	})
}

func TestUnknownOutput(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, err := execute(t, mocks.NewMockOptionStore(ctrl), "list", "-o", "xml")
	assert.Error(t, err)
}
