// Package entitlement is the boundary to the account-quota system that decides
// whether a caller may use augmented (model-generated) suggestions.
//
// The suggestion engine only consumes this interface: it asks once per
// resolution whether augmentation is allowed and records one usage event when
// augmented candidates are returned. Account identity travels in the context.
package entitlement

import (
	"context"
	"errors"
)

// UsageAugmentedSuggestion is the usage-event kind recorded when a resolution
// returned augmented candidates.
const UsageAugmentedSuggestion = "augmented_suggestion"

// ErrNoAccount is returned by checkers that require an account in the context
// when none is present.
var ErrNoAccount = errors.New("entitlement: no account in context")

// Status is the result of an entitlement check.
type Status struct {
	Allowed bool
	// Remaining is the number of augmented suggestions left in the current
	// period. Negative means unlimited.
	Remaining int
}

// Checker decides entitlement and records usage.
//
// Implementations must be safe for concurrent use and honour ctx deadlines.
type Checker interface {
	CheckEntitlement(ctx context.Context) (Status, error)
	RecordUsageEvent(ctx context.Context, kind string) error
}

type accountKey struct{}

// WithAccount returns a copy of ctx carrying accountID. An empty ID leaves
// ctx unchanged.
func WithAccount(ctx context.Context, accountID string) context.Context {
	if accountID == "" {
		return ctx
	}
	return context.WithValue(ctx, accountKey{}, accountID)
}

// AccountFromContext returns the account ID stored by WithAccount.
func AccountFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(accountKey{}).(string)
	return id, ok && id != ""
}

// Unlimited allows every request and ignores usage. It is the default when no
// quota store is configured.
type Unlimited struct{}

// CheckEntitlement always allows.
func (Unlimited) CheckEntitlement(context.Context) (Status, error) {
	return Status{Allowed: true, Remaining: -1}, nil
}

// RecordUsageEvent is a no-op.
func (Unlimited) RecordUsageEvent(context.Context, string) error { return nil }

var _ Checker = Unlimited{}
