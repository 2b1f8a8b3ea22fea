package occupation

import (
	"context"
	"sync"
	"time"
)

// Memory implements Writer backed by a map, for tests and examples. Calls
// honor context cancellation so deadline behavior can be exercised without
// a real database.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Record
}

// NewMemory returns a new in-memory occupation store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]Record)}
}

// Get implements Store.Get.
func (m *Memory) Get(ctx context.Context, resourceID string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	m.mu.RLock()
	rec, ok := m.items[resourceID]
	m.mu.RUnlock()
	return rec, ok, nil
}

// ListOccupied implements Store.ListOccupied.
func (m *Memory) ListOccupied(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []Record
	for _, rec := range m.items {
		if rec.Occupied() {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// SetOccupied implements Writer.SetOccupied.
func (m *Memory) SetOccupied(ctx context.Context, resourceID, owner string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.items[resourceID] = Record{ResourceID: resourceID, Owner: owner, OccupiedAt: at}
	m.mu.Unlock()
	return nil
}

// Clear implements Writer.Clear.
func (m *Memory) Clear(ctx context.Context, resourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if rec, ok := m.items[resourceID]; ok {
		rec.Owner = ""
		rec.OccupiedAt = time.Time{}
		m.items[resourceID] = rec
	}
	m.mu.Unlock()
	return nil
}
