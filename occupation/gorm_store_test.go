package occupation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	s, err := NewGormStore(db)
	assert.NoError(t, err)
	return s
}

func TestGormStoreSetGetClear(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()

	_, found, err := s.Get(ctx, "SPOOL-1")
	assert.NoError(t, err)
	assert.False(t, found)

	at := time.Now().Truncate(time.Second)
	err = s.SetOccupied(ctx, "SPOOL-1", "W1", at)
	assert.NoError(t, err)

	rec, found, err := s.Get(ctx, "SPOOL-1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "W1", rec.Owner)
	assert.True(t, rec.Occupied())
	assert.Equal(t, at.Unix(), rec.OccupiedAt.Unix())

	err = s.Clear(ctx, "SPOOL-1")
	assert.NoError(t, err)

	rec, found, err = s.Get(ctx, "SPOOL-1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.False(t, rec.Occupied())
	assert.True(t, rec.OccupiedAt.IsZero())
}

func TestGormStoreUpsert(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()

	assert.NoError(t, s.SetOccupied(ctx, "UNION-7", "W1", time.Now()))
	assert.NoError(t, s.SetOccupied(ctx, "UNION-7", "W2", time.Now()))

	rec, found, err := s.Get(ctx, "UNION-7")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "W2", rec.Owner)
}

func TestGormStoreListOccupied(t *testing.T) {
	s := newGormStore(t)
	ctx := context.Background()

	assert.NoError(t, s.SetOccupied(ctx, "SPOOL-1", "W1", time.Now()))
	assert.NoError(t, s.SetOccupied(ctx, "SPOOL-2", "W2", time.Now()))
	assert.NoError(t, s.SetOccupied(ctx, "SPOOL-3", "W3", time.Now()))
	assert.NoError(t, s.Clear(ctx, "SPOOL-3"))

	recs, err := s.ListOccupied(ctx)
	assert.NoError(t, err)
	assert.Len(t, recs, 2)
	owners := map[string]string{}
	for _, r := range recs {
		owners[r.ResourceID] = r.Owner
	}
	assert.Equal(t, map[string]string{"SPOOL-1": "W1", "SPOOL-2": "W2"}, owners)
}
