package lockstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time // zero when persistent
}

// Memory implements Store using local memory. It is used by unit tests and
// as a fault-injection harness: SetUnavailable makes every call fail with
// ErrUnavailable, simulating a lock-store outage.
type Memory struct {
	mu          sync.Mutex
	items       map[string]memEntry
	unavailable bool
}

// NewMemory returns a new in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]memEntry)}
}

// SetUnavailable toggles simulated outage of the store.
func (m *Memory) SetUnavailable(down bool) {
	m.mu.Lock()
	m.unavailable = down
	m.mu.Unlock()
}

// purgeLocked drops the entry for key if its TTL elapsed. Callers hold mu.
func (m *Memory) purgeLocked(key string) {
	if e, ok := m.items[key]; ok && !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.items, key)
	}
}

// SetIfAbsent implements Store.SetIfAbsent.
func (m *Memory) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return false, ErrUnavailable
	}
	m.purgeLocked(key)
	if _, ok := m.items[key]; ok {
		return false, nil
	}
	e := memEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.items[key] = e
	return true, nil
}

// Persist implements Store.Persist.
func (m *Memory) Persist(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return false, ErrUnavailable
	}
	m.purgeLocked(key)
	e, ok := m.items[key]
	if !ok || e.expiresAt.IsZero() {
		return false, nil
	}
	e.expiresAt = time.Time{}
	m.items[key] = e
	return true, nil
}

// Exists implements Store.Exists.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return false, ErrUnavailable
	}
	m.purgeLocked(key)
	_, ok := m.items[key]
	return ok, nil
}

// Get implements Store.Get.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return "", false, ErrUnavailable
	}
	m.purgeLocked(key)
	e, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

// Delete implements Store.Delete.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return ErrUnavailable
	}
	delete(m.items, key)
	return nil
}

// CompareAndDelete implements Store.CompareAndDelete.
func (m *Memory) CompareAndDelete(ctx context.Context, key, match string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return false, ErrUnavailable
	}
	m.purgeLocked(key)
	e, ok := m.items[key]
	if !ok {
		return true, nil
	}
	if e.value == match || strings.HasPrefix(e.value, match+":") {
		delete(m.items, key)
		return true, nil
	}
	return false, nil
}

// ScanPrefix implements Store.ScanPrefix. Keys are walked in sorted order
// with the cursor acting as an offset, so repeated calls make progress the
// same way a Redis SCAN does.
func (m *Memory) ScanPrefix(ctx context.Context, prefix string, cursor uint64, count int64) ([]string, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, 0, ErrUnavailable
	}
	now := time.Now()
	var keys []string
	for k, e := range m.items {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			delete(m.items, k)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if cursor >= uint64(len(keys)) {
		return nil, 0, nil
	}
	if count <= 0 {
		count = int64(len(keys))
	}
	end := cursor + uint64(count)
	if end > uint64(len(keys)) {
		end = uint64(len(keys))
	}
	next := end
	if next >= uint64(len(keys)) {
		next = 0
	}
	return keys[cursor:end], next, nil
}
