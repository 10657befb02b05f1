package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/logger"
	"github.com/feral-file/ff-options/internal/store/schema"
	"github.com/feral-file/ff-options/internal/value"
)

type pgOptionStore struct {
	db    *gorm.DB
	clock adapter.Clock
	log   *zap.Logger

	table            string
	indexPrefix      string
	writeConcurrency int

	mu          sync.Mutex
	provisioned atomic.Bool
}

// Option configures the PostgreSQL option store
type Option func(*pgOptionStore)

// WithTable places the options table in the given schema and prepends prefix to its name.
// Both may be empty.
func WithTable(schemaName string, prefix string) Option {
	return func(s *pgOptionStore) {
		base := prefix + schema.DefaultOptionTable
		s.indexPrefix = "idx_" + base
		s.table = base
		if schemaName != "" {
			s.table = schemaName + "." + base
		}
	}
}

// WithLogger sets the logger used for provisioning and retry diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(s *pgOptionStore) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWriteConcurrency sets how many SetMultiple entries are written in parallel
func WithWriteConcurrency(n int) Option {
	return func(s *pgOptionStore) {
		if n > 0 {
			s.writeConcurrency = n
		}
	}
}

// NewOptionStore creates an option store backed by PostgreSQL
func NewOptionStore(db *gorm.DB, clock adapter.Clock, opts ...Option) OptionStore {
	s := &pgOptionStore{
		// every operation is a single statement, gorm's implicit transaction buys nothing
		db:               db.Session(&gorm.Session{SkipDefaultTransaction: true}),
		clock:            clock,
		log:              logger.Default(),
		table:            schema.DefaultOptionTable,
		indexPrefix:      "idx_" + schema.DefaultOptionTable,
		writeConcurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *pgOptionStore) query(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

func keyEquals(key string) clause.Eq {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}

func (s *pgOptionStore) now() time.Time {
	// postgres keeps microseconds
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// Init provisions the options table and its indexes if they do not exist yet
func (s *pgOptionStore) Init(ctx context.Context) error {
	return s.ensureSchema(ctx)
}

// Set inserts or updates the option stored under key
func (s *pgOptionStore) Set(ctx context.Context, key string, v value.Value, autoload bool) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	raw, isJSON, err := v.Encode()
	if err != nil {
		return err
	}

	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	now := s.now()

	var existing schema.Option
	err = s.query(ctx).Select("id").Where(keyEquals(key)).Take(&existing).Error
	switch {
	case err == nil:
		return s.update(ctx, key, raw, isJSON, autoload, now)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return dataAccessError("failed to look up option", err)
	}

	row := schema.Option{
		Key:         key,
		Value:       raw,
		IsJSON:      isJSON,
		Autoload:    autoload,
		DateCreated: now,
		DateUpdated: now,
	}
	result := s.query(ctx).Create(&row)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			s.log.Debug("Option inserted concurrently, retrying as update", zap.String("key", key))
			return s.update(ctx, key, raw, isJSON, autoload, now)
		}
		return dataAccessError("failed to insert option", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: insert of %q affected no rows", ErrNotPersisted, key)
	}

	return nil
}

func (s *pgOptionStore) update(ctx context.Context, key string, raw string, isJSON bool, autoload bool, now time.Time) error {
	result := s.query(ctx).
		Where(keyEquals(key)).
		Updates(map[string]any{
			"value":    raw,
			"isJson":   isJSON,
			"autoload": autoload,
			// dateUpdated never precedes dateCreated, even with a skewed clock
			"dateUpdated": gorm.Expr(`GREATEST(?, "dateCreated")`, now),
		})
	if result.Error != nil {
		return dataAccessError("failed to update option", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: update of %q affected no rows", ErrNotPersisted, key)
	}
	return nil
}

// SetMultiple sets every option with the same autoload flag. It is not atomic:
// every entry is attempted and the failures are reported together in a *MultiError.
func (s *pgOptionStore) SetMultiple(ctx context.Context, options map[string]value.Value, autoload bool) error {
	if len(options) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		failed = make(map[string]error)
	)

	pool := pond.NewPool(s.writeConcurrency)
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for key, v := range options {
		group.Submit(func() {
			if err := s.Set(ctx, key, v, autoload); err != nil {
				mu.Lock()
				failed[key] = err
				mu.Unlock()
			}
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("failed to wait for option writes: %w", err)
	}

	if len(failed) > 0 {
		return &MultiError{Failed: failed}
	}
	return nil
}

// GetOption returns the raw row stored under key
func (s *pgOptionStore) GetOption(ctx context.Context, key string) (*schema.Option, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	var row schema.Option
	err := s.query(ctx).Where(keyEquals(key)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrOptionNotFound, key)
		}
		return nil, dataAccessError("failed to get option", err)
	}

	return &row, nil
}

// Get returns the decoded value stored under key
func (s *pgOptionStore) Get(ctx context.Context, key string) (value.Value, error) {
	row, err := s.GetOption(ctx, key)
	if err != nil {
		return value.Value{}, err
	}

	v, err := value.Decode(row.Value, row.IsJSON)
	if err != nil {
		return value.Value{}, fmt.Errorf("option %q: %w", key, err)
	}
	return v, nil
}

// GetAll returns every option, restricted to the given autoload flag when it is not nil
func (s *pgOptionStore) GetAll(ctx context.Context, autoload *bool) (map[string]value.Value, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	q := s.query(ctx).Select("key", "value", "isJson")
	if autoload != nil {
		q = q.Where(clause.Eq{Column: clause.Column{Name: "autoload"}, Value: *autoload})
	}

	var rows []schema.Option
	if err := q.Find(&rows).Error; err != nil {
		return nil, dataAccessError("failed to list options", err)
	}

	result := make(map[string]value.Value, len(rows))
	for _, row := range rows {
		v, err := value.Decode(row.Value, row.IsJSON)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", row.Key, err)
		}
		result[row.Key] = v
	}

	return result, nil
}

// Delete removes the option stored under key and reports whether a row was removed
func (s *pgOptionStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}

	result := s.query(ctx).Where(keyEquals(key)).Delete(&schema.Option{})
	if result.Error != nil {
		return false, dataAccessError("failed to delete option", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// Exists reports whether an option is stored under key
func (s *pgOptionStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}

	var count int64
	if err := s.query(ctx).Where(keyEquals(key)).Count(&count).Error; err != nil {
		return false, dataAccessError("failed to count options", err)
	}

	return count > 0, nil
}

// Has is an alias of Exists
func (s *pgOptionStore) Has(ctx context.Context, key string) (bool, error) {
	return s.Exists(ctx, key)
}
