package occlock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/fabworks/spooltrace/lockstore"
	"github.com/fabworks/spooltrace/occupation"
)

func TestCleanupRemovesAbandonedLock(t *testing.T) {
	m, locks, occ := newTestManager(t)
	ctx := context.Background()

	plantLock(t, locks, "lock:SPOOL-2", "W1", "tok", 25*time.Hour)
	// Durable store shows the resource free.
	if err := occ.SetOccupied(ctx, "SPOOL-2", "W1", time.Now().Add(-25*time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := occ.Clear(ctx, "SPOOL-2"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	cleaned, err := m.CleanupOne(ctx)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !cleaned {
		t.Fatal("expected a lock to be cleaned")
	}
	if ok, _ := locks.Exists(ctx, "lock:SPOOL-2"); ok {
		t.Fatal("abandoned lock still present")
	}
}

func TestCleanupKeepsYoungLock(t *testing.T) {
	m, locks, _ := newTestManager(t)
	ctx := context.Background()

	plantLock(t, locks, "lock:SPOOL-1", "W1", "tok", time.Hour)

	cleaned, err := m.CleanupOne(ctx)
	if err != nil || cleaned {
		t.Fatalf("young lock must survive, cleaned %v err %v", cleaned, err)
	}
	if ok, _ := locks.Exists(ctx, "lock:SPOOL-1"); !ok {
		t.Fatal("young lock deleted")
	}
}

func TestCleanupRespectsDurableOwner(t *testing.T) {
	m, locks, occ := newTestManager(t)
	ctx := context.Background()

	plantLock(t, locks, "lock:SPOOL-1", "W1", "tok", 25*time.Hour)
	// The durable record still names an owner; it wins over lock age.
	if err := occ.SetOccupied(ctx, "SPOOL-1", "W1", time.Now().Add(-25*time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cleaned, err := m.CleanupOne(ctx)
	if err != nil || cleaned {
		t.Fatalf("occupied lock must survive, cleaned %v err %v", cleaned, err)
	}
	if ok, _ := locks.Exists(ctx, "lock:SPOOL-1"); !ok {
		t.Fatal("legitimately held lock deleted")
	}
}

func TestCleanupSkipsLegacyValue(t *testing.T) {
	m, locks, _ := newTestManager(t)
	ctx := context.Background()

	// Legacy format: no timestamp, age unknown, never reaped.
	if ok, err := locks.SetIfAbsent(ctx, "lock:SPOOL-1", "W1:tok", 0); err != nil || !ok {
		t.Fatalf("seed: ok %v err %v", ok, err)
	}

	cleaned, err := m.CleanupOne(ctx)
	if err != nil || cleaned {
		t.Fatalf("legacy lock must survive, cleaned %v err %v", cleaned, err)
	}
	if ok, _ := locks.Exists(ctx, "lock:SPOOL-1"); !ok {
		t.Fatal("legacy lock deleted")
	}
}

func TestCleanupSkipsMalformedValue(t *testing.T) {
	m, locks, _ := newTestManager(t)
	ctx := context.Background()

	if ok, err := locks.SetIfAbsent(ctx, "lock:SPOOL-1", "not a lock value at all", 0); err != nil || !ok {
		t.Fatalf("seed: ok %v err %v", ok, err)
	}

	cleaned, err := m.CleanupOne(ctx)
	if err != nil || cleaned {
		t.Fatalf("malformed value must be skipped, cleaned %v err %v", cleaned, err)
	}
	if ok, _ := locks.Exists(ctx, "lock:SPOOL-1"); !ok {
		t.Fatal("malformed entry deleted")
	}
}

func TestCleanupNothingToDo(t *testing.T) {
	m, _, _ := newTestManager(t)
	if cleaned, err := m.CleanupOne(context.Background()); err != nil || cleaned {
		t.Fatalf("empty store: cleaned %v err %v", cleaned, err)
	}
}

func TestCleanupSkipsWhenStoreDown(t *testing.T) {
	m, locks, _ := newTestManager(t)
	locks.SetUnavailable(true)
	if cleaned, err := m.CleanupOne(context.Background()); err != nil || cleaned {
		t.Fatalf("outage must be absorbed, cleaned %v err %v", cleaned, err)
	}
}

// failingOcc simulates a durable-store outage during the occupation check.
type failingOcc struct{}

func (failingOcc) Get(ctx context.Context, resourceID string) (occupation.Record, bool, error) {
	return occupation.Record{}, false, errors.New("durable store down")
}

func (failingOcc) ListOccupied(ctx context.Context) ([]occupation.Record, error) {
	return nil, errors.New("durable store down")
}

func TestCleanupAbortsOnDurableStoreError(t *testing.T) {
	locks := lockstore.NewMemory()
	m := New(locks, failingOcc{}, WithLogger(logr.Discard()))
	ctx := context.Background()

	plantLock(t, locks, "lock:SPOOL-1", "W1", "tok", 25*time.Hour)

	cleaned, err := m.CleanupOne(ctx)
	if err != nil || cleaned {
		t.Fatalf("durable error must abort silently, cleaned %v err %v", cleaned, err)
	}
	if ok, _ := locks.Exists(ctx, "lock:SPOOL-1"); !ok {
		t.Fatal("lock deleted despite unverifiable occupation")
	}
}

func TestCleanupCursorMakesProgress(t *testing.T) {
	m, locks, occ := newTestManager(t)
	ctx := context.Background()

	// Ten young locks fill the first scan batch; the abandoned one sorts
	// last and is only reachable once the cursor advances.
	for i := 0; i < 10; i++ {
		plantLock(t, locks, fmt.Sprintf("lock:SPOOL-%02d", i), "W1", "tok", time.Hour)
	}
	plantLock(t, locks, "lock:UNION-99", "W2", "tok", 25*time.Hour)
	if err := occ.SetOccupied(ctx, "UNION-99", "W2", time.Now().Add(-25*time.Hour)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := occ.Clear(ctx, "UNION-99"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if cleaned, err := m.CleanupOne(ctx); err != nil || cleaned {
		t.Fatalf("first pass should skip a young lock, cleaned %v err %v", cleaned, err)
	}
	cleaned, err := m.CleanupOne(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !cleaned {
		t.Fatal("cursor did not reach the abandoned lock")
	}
	if ok, _ := locks.Exists(ctx, "lock:UNION-99"); ok {
		t.Fatal("abandoned lock still present")
	}
}
