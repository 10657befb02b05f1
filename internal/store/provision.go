package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-options/internal/logger"
)

const createOptionTableSQL = `CREATE TABLE IF NOT EXISTS ? (
	"id" bigserial PRIMARY KEY,
	"key" varchar(255) NOT NULL,
	"value" text,
	"isJson" boolean DEFAULT false,
	"autoload" boolean DEFAULT false,
	"dateCreated" timestamptz NOT NULL,
	"dateUpdated" timestamptz NOT NULL
)`

const (
	createKeyIndexSQL      = `CREATE UNIQUE INDEX IF NOT EXISTS ? ON ? ("key")`
	createAutoloadIndexSQL = `CREATE INDEX IF NOT EXISTS ? ON ? ("autoload")`
)

// ensureSchema provisions the table once per store. A failed attempt is not
// remembered, so the next operation runs every statement again.
func (s *pgOptionStore) ensureSchema(ctx context.Context) error {
	if s.provisioned.Load() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provisioned.Load() {
		return nil
	}

	if err := s.provision(ctx); err != nil {
		s.log.Error("Failed to provision options table",
			zap.Error(err),
			zap.String("table", s.table),
		)
		return fmt.Errorf("%w: %w", ErrSchemaProvisioning, err)
	}

	s.provisioned.Store(true)
	return nil
}

func (s *pgOptionStore) provision(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	// every statement runs on every attempt: a table left behind by a failed
	// attempt may still be missing its indexes
	table := clause.Table{Name: s.table}
	steps := []struct {
		name string
		sql  string
		vars []any
	}{
		{"create table", createOptionTableSQL, []any{table}},
		{"create key index", createKeyIndexSQL, []any{clause.Column{Name: s.indexPrefix + "_key"}, table}},
		{"create autoload index", createAutoloadIndexSQL, []any{clause.Column{Name: s.indexPrefix + "_autoload"}, table}},
	}

	for _, step := range steps {
		if err := db.Exec(step.sql, step.vars...).Error; err != nil {
			return fmt.Errorf("failed to %s: %w", step.name, err)
		}
	}

	s.log.Info("Options table ready", zap.String("table", s.table))
	return nil
}

// InitWithRetry provisions the options table, retrying with exponential backoff
// while the database is unreachable. maxElapsed of zero retries until ctx is done.
func InitWithRetry(ctx context.Context, s OptionStore, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxElapsed

	var attemptCount int
	notifyOnError := func(err error, duration time.Duration) {
		attemptCount++
		logger.WarnCtx(ctx, "Options table provisioning failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attemptCount),
			zap.Duration("next_retry_in", duration),
		)
	}

	operation := func() error {
		return s.Init(ctx)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notifyOnError); err != nil {
		return fmt.Errorf("failed after %d attempts: %w", attemptCount+1, err)
	}
	return nil
}
