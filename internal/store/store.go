package store

import (
	"context"

	"github.com/feral-file/ff-options/internal/store/schema"
	"github.com/feral-file/ff-options/internal/value"
)

// OptionStore defines the persistence operations for options
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=OptionStore=MockOptionStore
type OptionStore interface {
	// Init provisions the options table and its indexes if they do not exist yet
	Init(ctx context.Context) error
	// Set inserts or updates the option stored under key
	Set(ctx context.Context, key string, v value.Value, autoload bool) error
	// SetMultiple sets every option with the same autoload flag, attempting all of them
	SetMultiple(ctx context.Context, options map[string]value.Value, autoload bool) error
	// Get returns the decoded value stored under key, or ErrOptionNotFound
	Get(ctx context.Context, key string) (value.Value, error)
	// GetOption returns the raw row stored under key, or ErrOptionNotFound
	GetOption(ctx context.Context, key string) (*schema.Option, error)
	// GetAll returns every option, restricted to the given autoload flag when it is not nil
	GetAll(ctx context.Context, autoload *bool) (map[string]value.Value, error)
	// Delete removes the option stored under key and reports whether a row was removed
	Delete(ctx context.Context, key string) (bool, error)
	// Exists reports whether an option is stored under key
	Exists(ctx context.Context, key string) (bool, error)
	// Has is an alias of Exists
	Has(ctx context.Context, key string) (bool, error)
}
