package store

import (
	"context"
	"time"
)

// Store persists small string values partitioned by a session scope.
// A scope plays the role of a browser session: every process that opens
// the same database with the same scope sees the same values, and scopes
// left idle long enough are pruned.
type Store interface {
	// GetValue returns the value for key in scope. ok is false when the
	// key is absent.
	GetValue(ctx context.Context, scope, key string) (value string, ok bool, err error)

	// SetValues writes every pair in one transaction.
	SetValues(ctx context.Context, scope string, values map[string]string) error

	// DeleteValues removes the given keys in one transaction.
	DeleteValues(ctx context.Context, scope string, keys ...string) error

	// ClearScope removes every key in scope.
	ClearScope(ctx context.Context, scope string) error

	// PruneScopes removes scopes whose newest value is older than before
	// and returns how many rows were deleted.
	PruneScopes(ctx context.Context, before time.Time) (int64, error)
}
