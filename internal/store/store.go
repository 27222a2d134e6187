package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no live record exists for a key.
// Expired records are reported as not found, never returned.
var ErrNotFound = errors.New("record not found")

// Record is a single persisted item. ExpiresAt is the moment the record
// stops being readable; the zero value means the record never expires.
type Record struct {
	Key       string
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the record is past its expiry at the given time.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !r.ExpiresAt.After(now)
}

// KV defines the interface for the persistent key/value store shared by
// the token manager and the response cache. Implementations must treat
// keys as opaque and must never serve a record past its ExpiresAt.
type KV interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// Put writes or replaces the record for rec.Key.
	Put(ctx context.Context, rec Record) error

	// Close releases the underlying store.
	Close() error
}
