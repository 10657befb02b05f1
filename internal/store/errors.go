package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// MaxKeyLength is the width of the key column
const MaxKeyLength = 255

// pgUniqueViolation is the SQLSTATE raised when a unique index rejects a row
const pgUniqueViolation = "23505"

var (
	// ErrInvalidKey is returned when a key is empty or longer than MaxKeyLength
	ErrInvalidKey = errors.New("invalid option key")

	// ErrOptionNotFound is returned when no option is stored under a key
	ErrOptionNotFound = errors.New("option not found")

	// ErrSchemaProvisioning is returned when the options table could not be created
	ErrSchemaProvisioning = errors.New("schema provisioning failed")

	// ErrDataAccess wraps any failure reported by the database
	ErrDataAccess = errors.New("data access failed")

	// ErrNotPersisted is returned when a write completed without affecting any row
	ErrNotPersisted = errors.New("option not persisted")
)

// ValidateKey checks that key fits the key column
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key is empty", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: key is %d bytes, limit is %d", ErrInvalidKey, len(key), MaxKeyLength)
	}
	return nil
}

// MultiError reports the keys that failed during SetMultiple
type MultiError struct {
	Failed map[string]error
}

func (e *MultiError) Error() string {
	keys := e.keys()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, e.Failed[k]))
	}
	return fmt.Sprintf("failed to set %d option(s): %s", len(keys), strings.Join(parts, "; "))
}

// Unwrap exposes every per-key error to errors.Is and errors.As
func (e *MultiError) Unwrap() []error {
	keys := e.keys()
	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, e.Failed[k])
	}
	return errs
}

// keys returns the failed keys in sorted order
func (e *MultiError) keys() []string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dataAccessError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDataAccess, msg, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
