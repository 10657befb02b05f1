// Package options is the convenience layer over the option store. Every failure
// except a decode error is logged, reported to the error hook and collapsed into
// false, the caller's default or an empty map. Callers that must tell an absent
// option from a failed lookup install an ErrorHook or use WithCapture.
package options

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-options/internal/adapter"
	"github.com/feral-file/ff-options/internal/logger"
	"github.com/feral-file/ff-options/internal/store"
	"github.com/feral-file/ff-options/internal/store/schema"
	"github.com/feral-file/ff-options/internal/value"
)

// Operation names a facade operation in logs, hooks and metrics
type Operation string

const (
	OpSet         Operation = "set"
	OpSetMultiple Operation = "set_multiple"
	OpGet         Operation = "get"
	OpGetAll      Operation = "get_all"
	OpDelete      Operation = "delete"
	OpExists      Operation = "exists"
)

// Outcomes reported to the Recorder
const (
	OutcomeOK    = "ok"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// ErrorHook receives every failure that the facade hides from its return value.
// It lets callers tell "absent" apart from "failed".
type ErrorHook func(ctx context.Context, op Operation, key string, err error)

// Recorder observes the outcome and duration of each operation
type Recorder interface {
	Observe(operation string, outcome string, elapsed time.Duration)
}

// Options wraps an OptionStore with boolean and default-value results
type Options struct {
	store    store.OptionStore
	log      *zap.Logger
	clock    adapter.Clock
	hook     ErrorHook
	recorder Recorder
}

// Option configures Options
type Option func(*Options)

func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.log = l
		}
	}
}

func WithErrorHook(hook ErrorHook) Option {
	return func(o *Options) {
		o.hook = hook
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *Options) {
		o.recorder = r
	}
}

func WithClock(c adapter.Clock) Option {
	return func(o *Options) {
		if c != nil {
			o.clock = c
		}
	}
}

// New creates the facade over s
func New(s store.OptionStore, opts ...Option) *Options {
	o := &Options{
		store: s,
		log:   logger.Default(),
		clock: adapter.NewClock(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Store returns the underlying store for callers that need explicit errors
func (o *Options) Store() store.OptionStore {
	return o.store
}

// Set stores v under key and reports whether a row was written
func (o *Options) Set(ctx context.Context, key string, v value.Value, autoload bool) bool {
	start := o.clock.Now()
	if err := o.store.Set(ctx, key, v, autoload); err != nil {
		o.fail(ctx, OpSet, key, err, start)
		return false
	}
	o.observe(OpSet, OutcomeOK, start)
	return true
}

// SetAny converts v with value.Of and stores it: strings verbatim, anything else as JSON
func (o *Options) SetAny(ctx context.Context, key string, v any, autoload bool) bool {
	start := o.clock.Now()
	val, err := value.Of(v)
	if err != nil {
		o.fail(ctx, OpSet, key, err, start)
		return false
	}
	return o.Set(ctx, key, val, autoload)
}

// SetMultiple stores every entry and reports whether all of them were written.
// A failed entry does not stop the others.
func (o *Options) SetMultiple(ctx context.Context, opts map[string]value.Value, autoload bool) bool {
	start := o.clock.Now()
	err := o.store.SetMultiple(ctx, opts, autoload)
	if err == nil {
		o.observe(OpSetMultiple, OutcomeOK, start)
		return true
	}

	var multi *store.MultiError
	if errors.As(err, &multi) {
		for key, keyErr := range multi.Failed {
			o.report(ctx, OpSetMultiple, key, keyErr)
		}
		o.observe(OpSetMultiple, OutcomeError, start)
		return false
	}

	o.fail(ctx, OpSetMultiple, "", err, start)
	return false
}

// Get returns the value stored under key, or def when it is absent or cannot be read.
// Only a stored value that fails to decode is returned as an error.
func (o *Options) Get(ctx context.Context, key string, def value.Value) (value.Value, error) {
	start := o.clock.Now()
	v, err := o.store.Get(ctx, key)
	switch {
	case err == nil:
		o.observe(OpGet, OutcomeOK, start)
		return v, nil
	case errors.Is(err, store.ErrOptionNotFound):
		o.observe(OpGet, OutcomeMiss, start)
		return def, nil
	case errors.Is(err, value.ErrDecode):
		o.fail(ctx, OpGet, key, err, start)
		return value.Value{}, err
	default:
		o.fail(ctx, OpGet, key, err, start)
		return def, nil
	}
}

// Option returns the stored row under key, or nil when it is absent or cannot be read
func (o *Options) Option(ctx context.Context, key string) *schema.Option {
	start := o.clock.Now()
	row, err := o.store.GetOption(ctx, key)
	switch {
	case err == nil:
		o.observe(OpGet, OutcomeOK, start)
		return row
	case errors.Is(err, store.ErrOptionNotFound):
		o.observe(OpGet, OutcomeMiss, start)
		return nil
	default:
		o.fail(ctx, OpGet, key, err, start)
		return nil
	}
}

// GetAll returns every option matching the autoload filter (nil for all).
// A read failure yields an empty map; a decode failure is returned as an error.
func (o *Options) GetAll(ctx context.Context, autoload *bool) (map[string]value.Value, error) {
	start := o.clock.Now()
	all, err := o.store.GetAll(ctx, autoload)
	switch {
	case err == nil:
		o.observe(OpGetAll, OutcomeOK, start)
		return all, nil
	case errors.Is(err, value.ErrDecode):
		o.fail(ctx, OpGetAll, "", err, start)
		return nil, err
	default:
		o.fail(ctx, OpGetAll, "", err, start)
		return map[string]value.Value{}, nil
	}
}

// Delete removes key. False means either nothing was stored or the delete failed;
// the error hook distinguishes the two.
func (o *Options) Delete(ctx context.Context, key string) bool {
	start := o.clock.Now()
	deleted, err := o.store.Delete(ctx, key)
	if err != nil {
		o.fail(ctx, OpDelete, key, err, start)
		return false
	}
	o.observe(OpDelete, outcome(deleted), start)
	return deleted
}

// Exists reports whether key is stored. A failed lookup reports false.
func (o *Options) Exists(ctx context.Context, key string) bool {
	start := o.clock.Now()
	exists, err := o.store.Exists(ctx, key)
	if err != nil {
		o.fail(ctx, OpExists, key, err, start)
		return false
	}
	o.observe(OpExists, outcome(exists), start)
	return exists
}

// Has is an alias of Exists
func (o *Options) Has(ctx context.Context, key string) bool {
	return o.Exists(ctx, key)
}

func outcome(found bool) string {
	if found {
		return OutcomeOK
	}
	return OutcomeMiss
}

func (o *Options) fail(ctx context.Context, op Operation, key string, err error, start time.Time) {
	o.report(ctx, op, key, err)
	o.observe(op, OutcomeError, start)
}

func (o *Options) report(ctx context.Context, op Operation, key string, err error) {
	o.log.Error("Option operation failed",
		zap.String("operation", string(op)),
		zap.String("key", key),
		zap.Error(err),
	)
	if c := captureFrom(ctx); c != nil {
		c.add(Failure{Op: op, Key: key, Err: err})
	}
	if o.hook != nil {
		o.hook(ctx, op, key, err)
	}
}

func (o *Options) observe(op Operation, outcome string, start time.Time) {
	if o.recorder != nil {
		o.recorder.Observe(string(op), outcome, o.clock.Since(start))
	}
}
