// Package tx provides transaction management abstractions.
// The engine depends on these interfaces; implementations live in the
// storage packages (postgres, memory).
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
type Manager interface {
	// RunInTransaction executes fn within a store transaction.
	// If fn returns an error, every write made through ctx is rolled back.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Atomic reports whether writes made inside RunInTransaction are rolled back
// together. Stores that cannot roll back implement it returning false so the
// engine can fall back to per-record persistence with partial-failure reporting.
type Atomic interface {
	Atomic() bool
}

// IsAtomic reports whether m guarantees all-or-nothing writes.
// Managers that do not implement Atomic are assumed atomic.
func IsAtomic(m Manager) bool {
	if a, ok := m.(Atomic); ok {
		return a.Atomic()
	}
	return true
}

// None runs fn directly without any transaction.
type None struct{}

// RunInTransaction implements Manager.
func (None) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Atomic implements Atomic.
func (None) Atomic() bool { return false }
