// Package id provides identifiers for persisted units and engine operations.
// Unit ids are UUIDv7 so that the store's natural key order follows creation time.
package id

import (
	"time"

	"github.com/google/uuid"
)

// ID is the store-assigned identity of a unit.
type ID = uuid.UUID

// New generates a time-ordered UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// CreatedAt extracts the millisecond timestamp embedded in a UUIDv7.
// Returns the zero time for other versions.
func CreatedAt(v ID) time.Time {
	if v.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := v.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}

// NewOperationID returns a fresh operation id for callers that want
// at-most-once semantics but have no id of their own.
func NewOperationID() string {
	return New().String()
}
