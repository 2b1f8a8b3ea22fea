// Package lockstore defines the ephemeral key-value store backing the
// occupation locks, with Redis and in-memory implementations. The store's
// atomic set-if-absent is the only mutual-exclusion primitive in the system.
package lockstore

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks connection-level failures. The occupation-lock
// manager switches to degraded mode when it observes this error.
var ErrUnavailable = errors.New("lockstore: store unavailable")

// Store is the contract the occupation-lock manager needs from the
// ephemeral store. All methods may return an error wrapping ErrUnavailable
// when the backend cannot be reached.
type Store interface {
	// SetIfAbsent atomically creates key with value and ttl, returning
	// false when the key already exists. A non-positive ttl creates the
	// key without expiry.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Persist removes the TTL from key. It returns true only when the key
	// existed with a TTL and is now permanent.
	Persist(ctx context.Context, key string) (bool, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns the raw value for key. The boolean return is false when
	// the key is absent.
	Get(ctx context.Context, key string) (string, bool, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// CompareAndDelete removes key only if its value equals match or
	// starts with match followed by a field separator. It returns true
	// when the key no longer exists afterwards and false when a
	// mismatched value was left in place.
	CompareAndDelete(ctx context.Context, key, match string) (bool, error)
	// ScanPrefix walks keys starting with prefix from cursor, returning
	// at most roughly count keys and the cursor for the next call. A zero
	// next cursor means the iteration wrapped around.
	ScanPrefix(ctx context.Context, prefix string, cursor uint64, count int64) ([]string, uint64, error)
}
