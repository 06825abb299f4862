// Package mock provides a test double for the entitlement.Checker interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ezhuthu/internal/entitlement"
)

// Checker is a mock implementation of entitlement.Checker.
type Checker struct {
	mu sync.Mutex

	// Status is returned by CheckEntitlement.
	Status entitlement.Status

	// CheckErr, if non-nil, is returned by CheckEntitlement.
	CheckErr error

	// CheckFunc, if set, replaces Status and CheckErr.
	CheckFunc func(ctx context.Context) (entitlement.Status, error)

	// RecordErr, if non-nil, is returned by RecordUsageEvent.
	RecordErr error

	// RecordFunc, if set, runs after the event is recorded and replaces
	// RecordErr.
	RecordFunc func(ctx context.Context, kind string) error

	// CheckCallCount is the number of CheckEntitlement calls.
	CheckCallCount int

	// Accounts records the account ID seen on each CheckEntitlement call.
	Accounts []string

	// UsageEvents records the kind of every RecordUsageEvent call.
	UsageEvents []string
}

// CheckEntitlement records the call and returns Status and CheckErr.
func (c *Checker) CheckEntitlement(ctx context.Context) (entitlement.Status, error) {
	c.mu.Lock()
	c.CheckCallCount++
	id, _ := entitlement.AccountFromContext(ctx)
	c.Accounts = append(c.Accounts, id)
	fn := c.CheckFunc
	st, err := c.Status, c.CheckErr
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return st, err
}

// RecordUsageEvent records kind and returns RecordErr.
func (c *Checker) RecordUsageEvent(ctx context.Context, kind string) error {
	c.mu.Lock()
	c.UsageEvents = append(c.UsageEvents, kind)
	fn, err := c.RecordFunc, c.RecordErr
	c.mu.Unlock()

	if fn != nil {
		return fn(ctx, kind)
	}
	return err
}

// Checks returns the number of CheckEntitlement calls. Thread-safe.
func (c *Checker) Checks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CheckCallCount
}

// Events returns a copy of the recorded usage events. Thread-safe.
func (c *Checker) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.UsageEvents))
	copy(out, c.UsageEvents)
	return out
}

// AccountIDs returns a copy of the recorded account IDs. Thread-safe.
func (c *Checker) AccountIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Accounts...)
}

var _ entitlement.Checker = (*Checker)(nil)
