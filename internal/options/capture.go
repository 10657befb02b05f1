package options

import (
	"context"
	"errors"
	"sync"
)

type captureKey struct{}

// Failure is one error the facade hid from its return value
type Failure struct {
	Op  Operation
	Key string
	Err error
}

// Capture collects the failures of every facade call made with its context
type Capture struct {
	mu       sync.Mutex
	failures []Failure
}

// WithCapture returns a context under which facade failures are collected into the returned Capture
func WithCapture(ctx context.Context) (context.Context, *Capture) {
	c := &Capture{}
	return context.WithValue(ctx, captureKey{}, c), c
}

func captureFrom(ctx context.Context) *Capture {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(captureKey{}).(*Capture)
	return c
}

func (c *Capture) add(f Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, f)
}

// Failures returns the collected failures in the order they happened
func (c *Capture) Failures() []Failure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Failure(nil), c.failures...)
}

// Err joins the collected errors, or returns nil when nothing failed
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	errs := make([]error, 0, len(c.failures))
	for _, f := range c.failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// Reset forgets every collected failure
func (c *Capture) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = nil
}
