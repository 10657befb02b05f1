package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/mocks"
	"github.com/feral-file/ff-options/internal/store/schema"
	"github.com/feral-file/ff-options/internal/value"
)

// storeFixture is the per-test state handed to every store test
type storeFixture struct {
	store OptionStore
	// db is the raw handle, for inspecting or corrupting rows behind the store
	db *gorm.DB
	// table is the qualified name of the options table under test
	table string
	// open creates another store over the same table
	open func(clock adapter.Clock) OptionStore
}

func (f *storeFixture) rowCount(t *testing.T, key string) int64 {
	var count int64
	require.NoError(t, f.db.Table(f.table).Where(`"key" = ?`, key).Count(&count).Error)
	return count
}

// =============================================================================
// Set / Get
// =============================================================================

func testSetAndGet(t *testing.T, f *storeFixture) {
	ctx := context.Background()

	tests := []struct {
		name  string
		value value.Value
	}{
		{"plain string", value.String("hello")},
		{"empty string", value.String("")},
		{"string that looks like JSON", value.String(`{"a":1}`)},
		{"integer", value.MustOf(42)},
		{"large integer", value.FromJSON(value.Number("9007199254740993"))},
		{"float", value.MustOf(3.25)},
		{"boolean", value.MustOf(false)},
		{"null", value.FromJSON(value.Null())},
		{"array", value.MustOf([]any{"a", 1, true})},
		{"nested object", value.MustOf(map[string]any{
			"theme": "dark",
			"sizes": []any{1, 2, 3},
			"meta":  map[string]any{"enabled": true, "ratio": 0.5},
		})},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := fmt.Sprintf("round_trip_%d", i)
			require.NoError(t, f.store.Set(ctx, key, tt.value, false))

			got, err := f.store.Get(ctx, key)
			require.NoError(t, err)
			assert.True(t, tt.value.Equal(got), "expected %v, got %v", tt.value.Interface(), got.Interface())
			assert.Equal(t, tt.value.IsJSON(), got.IsJSON())
		})
	}

	t.Run("missing key", func(t *testing.T) {
		_, err := f.store.Get(ctx, "does_not_exist")
		assert.ErrorIs(t, err, ErrOptionNotFound)

		_, err = f.store.GetOption(ctx, "does_not_exist")
		assert.ErrorIs(t, err, ErrOptionNotFound)
	})
}

func testStringsStoredVerbatim(t *testing.T, f *storeFixture) {
	ctx := context.Background()

	t.Run("string value is never JSON-quoted", func(t *testing.T) {
		require.NoError(t, f.store.Set(ctx, "greeting", value.String(`"hi"`), false))

		row, err := f.store.GetOption(ctx, "greeting")
		require.NoError(t, err)
		assert.Equal(t, `"hi"`, row.Value)
		assert.False(t, row.IsJSON)
	})

	t.Run("JSON string is stored as a plain string", func(t *testing.T) {
		require.NoError(t, f.store.Set(ctx, "name", value.FromJSON(value.Str("Alice")), false))

		row, err := f.store.GetOption(ctx, "name")
		require.NoError(t, err)
		assert.Equal(t, "Alice", row.Value)
		assert.False(t, row.IsJSON)
	})

	t.Run("structured value is stored as JSON", func(t *testing.T) {
		require.NoError(t, f.store.Set(ctx, "limits", value.MustOf(map[string]any{"b": 2, "a": 1}), true))

		row, err := f.store.GetOption(ctx, "limits")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1,"b":2}`, row.Value)
		assert.True(t, row.IsJSON)
		assert.True(t, row.Autoload)
	})
}

// =============================================================================
// Upsert
// =============================================================================

func testUpsertKeepsSingleRow(t *testing.T, f *storeFixture) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	s := f.open(clock)

	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	skewed := created.Add(-time.Hour)

	clock.EXPECT().Now().Return(created)
	require.NoError(t, s.Set(ctx, "counter", value.MustOf(1), false))

	clock.EXPECT().Now().Return(updated)
	require.NoError(t, s.Set(ctx, "counter", value.MustOf(2), true))

	row, err := s.GetOption(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.rowCount(t, "counter"))
	assert.Equal(t, "2", row.Value)
	assert.True(t, row.Autoload)
	assert.True(t, created.Equal(row.DateCreated), "dateCreated %s", row.DateCreated)
	assert.True(t, updated.Equal(row.DateUpdated), "dateUpdated %s", row.DateUpdated)

	t.Run("clock moving backwards never puts dateUpdated before dateCreated", func(t *testing.T) {
		clock.EXPECT().Now().Return(skewed)
		require.NoError(t, s.Set(ctx, "counter", value.MustOf(3), true))

		row, err := s.GetOption(ctx, "counter")
		require.NoError(t, err)
		assert.True(t, created.Equal(row.DateCreated))
		assert.False(t, row.DateUpdated.Before(row.DateCreated))
	})

	t.Run("overwriting changes the value type", func(t *testing.T) {
		clock.EXPECT().Now().Return(updated)
		require.NoError(t, s.Set(ctx, "counter", value.String("three"), false))

		got, err := s.Get(ctx, "counter")
		require.NoError(t, err)
		assert.False(t, got.IsJSON())
		str, _ := got.AsString()
		assert.Equal(t, "three", str)
	})
}

func testConcurrentSetSameKey(t *testing.T, f *storeFixture) {
	ctx := context.Background()
	require.NoError(t, f.store.Init(ctx))

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// separate stores so no in-process lock serializes the writers
			errs[i] = f.open(nil).Set(ctx, "contended", value.MustOf(i), false)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "writer %d", i)
	}
	assert.Equal(t, int64(1), f.rowCount(t, "contended"))
}

// =============================================================================
// Delete / Exists
// =============================================================================

func testDelete(t *testing.T, f *storeFixture) {
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, "doomed", value.String("x"), false))

	deleted, err := f.store.Delete(ctx, "doomed")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = f.store.Get(ctx, "doomed")
	assert.ErrorIs(t, err, ErrOptionNotFound)

	deleted, err = f.store.Delete(ctx, "doomed")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func testExists(t *testing.T, f *storeFixture) {
	ctx := context.Background()

	exists, err := f.store.Exists(ctx, "present")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, f.store.Set(ctx, "present", value.FromJSON(value.Null()), false))

	exists, err = f.store.Exists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, exists)

	has, err := f.store.Has(ctx, "present")
	require.NoError(t, err)
	assert.True(t, has)
}

// =============================================================================
// GetAll / SetMultiple
// =============================================================================

func testGetAll(t *testing.T, f *storeFixture) {
	ctx := context.Background()
	yes, no := true, false

	t.Run("empty table", func(t *testing.T) {
		all, err := f.store.GetAll(ctx, nil)
		require.NoError(t, err)
		assert.NotNil(t, all)
		assert.Empty(t, all)
	})

	require.NoError(t, f.store.Set(ctx, "a", value.String("1"), true))
	require.NoError(t, f.store.Set(ctx, "b", value.MustOf(2), true))
	require.NoError(t, f.store.Set(ctx, "c", value.MustOf([]any{3}), false))

	tests := []struct {
		name     string
		autoload *bool
		keys     []string
	}{
		{"no filter", nil, []string{"a", "b", "c"}},
		{"autoload only", &yes, []string{"a", "b"}},
		{"non-autoload only", &no, []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			all, err := f.store.GetAll(ctx, tt.autoload)
			require.NoError(t, err)

			keys := make([]string, 0, len(all))
			for k := range all {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.keys, keys)
		})
	}

	all, err := f.store.GetAll(ctx, nil)
	require.NoError(t, err)
	assert.True(t, all["b"].Equal(value.MustOf(2)))
}

func testSetMultiple(t *testing.T, f *storeFixture) {
	ctx := context.Background()

	t.Run("writes every entry with the shared autoload flag", func(t *testing.T) {
		entries := map[string]value.Value{
			"m1": value.String("one"),
			"m2": value.MustOf(2),
			"m3": value.MustOf(map[string]any{"three": 3}),
		}
		require.NoError(t, f.store.SetMultiple(ctx, entries, true))

		for key, expected := range entries {
			row, err := f.store.GetOption(ctx, key)
			require.NoError(t, err)
			assert.True(t, row.Autoload, key)

			got, err := f.store.Get(ctx, key)
			require.NoError(t, err)
			assert.True(t, expected.Equal(got), key)
		}
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		assert.NoError(t, f.store.SetMultiple(ctx, nil, false))
	})

	t.Run("failed entries do not stop the rest", func(t *testing.T) {
		tooLong := strings.Repeat("k", MaxKeyLength+1)
		entries := map[string]value.Value{
			"good":  value.String("ok"),
			"":      value.String("empty key"),
			tooLong: value.String("long key"),
		}

		err := f.store.SetMultiple(ctx, entries, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidKey)

		var multi *MultiError
		require.ErrorAs(t, err, &multi)
		assert.Len(t, multi.Failed, 2)
		assert.Contains(t, multi.Failed, "")
		assert.Contains(t, multi.Failed, tooLong)

		exists, err := f.store.Exists(ctx, "good")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

// =============================================================================
// Keys / provisioning / corruption
// =============================================================================

func testKeyValidation(t *testing.T, f *storeFixture) {
	ctx := context.Background()

	t.Run("empty key rejected", func(t *testing.T) {
		err := f.store.Set(ctx, "", value.String("x"), false)
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("key at the column width accepted", func(t *testing.T) {
		key := strings.Repeat("a", MaxKeyLength)
		require.NoError(t, f.store.Set(ctx, key, value.String("x"), false))

		exists, err := f.store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("oversized key rejected on write and absent on read", func(t *testing.T) {
		key := strings.Repeat("a", MaxKeyLength+1)
		err := f.store.Set(ctx, key, value.String("x"), false)
		assert.ErrorIs(t, err, ErrInvalidKey)

		_, err = f.store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrOptionNotFound)
	})
}

func testProvisioning(t *testing.T, f *storeFixture) {
	ctx := context.Background()

	require.NoError(t, f.store.Init(ctx))
	require.NoError(t, f.store.Init(ctx))
	assert.True(t, f.db.Migrator().HasTable(f.table))

	base := f.table[strings.LastIndex(f.table, ".")+1:]
	assert.True(t, f.db.Migrator().HasIndex(f.table, "idx_"+base+"_key"))
	assert.True(t, f.db.Migrator().HasIndex(f.table, "idx_"+base+"_autoload"))

	require.NoError(t, f.store.Set(ctx, "survivor", value.String("still here"), false))

	// a table that lost its key index gets it back from a fresh store, rows intact
	keyIndex := strings.TrimSuffix(f.table, base) + "idx_" + base + "_key"
	require.NoError(t, f.db.Exec("DROP INDEX ?", clause.Table{Name: keyIndex}).Error)
	other := f.open(nil)
	require.NoError(t, other.Init(ctx))
	assert.True(t, f.db.Migrator().HasIndex(f.table, "idx_"+base+"_key"))

	got, err := other.Get(ctx, "survivor")
	require.NoError(t, err)
	str, _ := got.AsString()
	assert.Equal(t, "still here", str)
}

func testDecodeFailure(t *testing.T, f *storeFixture) {
	ctx := context.Background()
	require.NoError(t, f.store.Init(ctx))

	now := time.Now().UTC()
	require.NoError(t, f.db.Table(f.table).Create(&schema.Option{
		Key:         "broken",
		Value:       "{not json",
		IsJSON:      true,
		DateCreated: now,
		DateUpdated: now,
	}).Error)

	_, err := f.store.Get(ctx, "broken")
	assert.ErrorIs(t, err, value.ErrDecode)

	_, err = f.store.GetAll(ctx, nil)
	assert.ErrorIs(t, err, value.ErrDecode)

	// the raw row is still readable
	row, err := f.store.GetOption(ctx, "broken")
	require.NoError(t, err)
	assert.Equal(t, "{not json", row.Value)
}

// RunStoreTests runs every store test, each against a fresh fixture
func RunStoreTests(t *testing.T, initDB func(t *testing.T) *storeFixture, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, *storeFixture)
	}{
		{"SetAndGet", testSetAndGet},
		{"StringsStoredVerbatim", testStringsStoredVerbatim},
		{"UpsertKeepsSingleRow", testUpsertKeepsSingleRow},
		{"ConcurrentSetSameKey", testConcurrentSetSameKey},
		{"Delete", testDelete},
		{"Exists", testExists},
		{"GetAll", testGetAll},
		{"SetMultiple", testSetMultiple},
		{"KeyValidation", testKeyValidation},
		{"Provisioning", testProvisioning},
		{"DecodeFailure", testDecodeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, fixture)
		})
	}
}
