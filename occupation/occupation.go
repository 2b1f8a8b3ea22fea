// Package occupation models the durable occupation records of the
// traceability backing store. The durable store is the source of truth for
// who holds a spool or union; the lock store only mirrors it for fast
// mutual exclusion.
package occupation

import (
	"context"
	"time"
)

// Record is the durable occupation row for one resource.
type Record struct {
	ResourceID string
	// Owner is empty when the resource is free.
	Owner string
	// OccupiedAt is the zero time when the backing store has no timestamp
	// for the occupation.
	OccupiedAt time.Time
}

// Occupied reports whether the record names a current holder.
func (r Record) Occupied() bool {
	return r.Owner != ""
}

// Store is the read contract the lock manager and reconciler need from the
// durable store.
type Store interface {
	// Get returns the occupation record for a resource. The boolean
	// return is false when the durable store has no row for it.
	Get(ctx context.Context, resourceID string) (Record, bool, error)
	// ListOccupied returns all records with a non-empty owner.
	ListOccupied(ctx context.Context) ([]Record, error)
}

// Writer extends Store with the mutations the workflow layer performs when
// work starts and ends.
type Writer interface {
	Store
	// SetOccupied marks the resource as held by owner since at.
	SetOccupied(ctx context.Context, resourceID, owner string, at time.Time) error
	// Clear marks the resource as free.
	Clear(ctx context.Context, resourceID string) error
}
