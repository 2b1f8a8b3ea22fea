package occupation

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, found, err := m.Get(ctx, "SPOOL-1"); err != nil || found {
		t.Fatalf("expected miss, found %v err %v", found, err)
	}
	if err := m.SetOccupied(ctx, "SPOOL-1", "W1", time.Now()); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec, found, err := m.Get(ctx, "SPOOL-1")
	if err != nil || !found || rec.Owner != "W1" {
		t.Fatalf("get: %+v found %v err %v", rec, found, err)
	}
	recs, err := m.ListOccupied(ctx)
	if err != nil || len(recs) != 1 {
		t.Fatalf("list: %d err %v", len(recs), err)
	}
	if err := m.Clear(ctx, "SPOOL-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	rec, found, err = m.Get(ctx, "SPOOL-1")
	if err != nil || !found || rec.Occupied() {
		t.Fatalf("expected cleared record, %+v found %v err %v", rec, found, err)
	}
	if recs, err := m.ListOccupied(ctx); err != nil || len(recs) != 0 {
		t.Fatalf("list after clear: %d err %v", len(recs), err)
	}
}

func TestMemoryStoreHonorsContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.ListOccupied(ctx); err == nil {
		t.Fatal("expected context error")
	}
	if err := m.SetOccupied(ctx, "SPOOL-1", "W1", time.Now()); err == nil {
		t.Fatal("expected context error")
	}
}
