package occupation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultGormTableName = "occupations"
	defaultGormOpTimeout = 5 * time.Second
)

// occupationRow is the internal model used to persist occupation records.
type occupationRow struct {
	ResourceID string     `gorm:"primaryKey;column:resource_id;type:varchar(255)"`
	OccupiedBy string     `gorm:"column:occupied_by;index:idx_occupied_by"`
	OccupiedAt *time.Time `gorm:"column:occupied_at"`
}

// GormStore implements Writer using a GORM backend. Deployments that mirror
// the spreadsheet rows into a relational database use this as the durable
// store; the spreadsheet gateway itself lives upstream and satisfies the
// same interfaces.
type GormStore struct {
	db        *gorm.DB
	tableName string
	timeout   time.Duration
}

// GormOption configures a GormStore.
type GormOption func(*GormStore)

// WithGormTableName sets the table name for the GormStore.
func WithGormTableName(name string) GormOption {
	return func(s *GormStore) {
		s.tableName = name
	}
}

// WithGormTimeout sets the per-operation timeout for GORM calls.
func WithGormTimeout(d time.Duration) GormOption {
	return func(s *GormStore) {
		s.timeout = d
	}
}

// NewGormStore returns a new GormStore using the provided GORM DB
// connection, creating the occupations table when missing.
func NewGormStore(db *gorm.DB, opts ...GormOption) (*GormStore, error) {
	s := &GormStore{
		db:        db,
		tableName: defaultGormTableName,
		timeout:   defaultGormOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !db.Migrator().HasTable(s.tableName) {
		if err := db.Table(s.tableName).AutoMigrate(&occupationRow{}); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", s.tableName, err)
		}
	}
	return s, nil
}

func (s *GormStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func rowToRecord(row occupationRow) Record {
	rec := Record{ResourceID: row.ResourceID, Owner: row.OccupiedBy}
	if row.OccupiedAt != nil {
		rec.OccupiedAt = *row.OccupiedAt
	}
	return rec
}

// Get implements Store.Get.
func (s *GormStore) Get(ctx context.Context, resourceID string) (Record, bool, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()

	var row occupationRow
	err := s.db.WithContext(cctx).Table(s.tableName).First(&row, "resource_id = ?", resourceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get occupation %s: %w", resourceID, err)
	}
	return rowToRecord(row), true, nil
}

// ListOccupied implements Store.ListOccupied.
func (s *GormStore) ListOccupied(ctx context.Context) ([]Record, error) {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()

	var rows []occupationRow
	err := s.db.WithContext(cctx).Table(s.tableName).
		Where("occupied_by <> ''").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list occupied: %w", err)
	}
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, rowToRecord(row))
	}
	return recs, nil
}

// SetOccupied implements Writer.SetOccupied.
func (s *GormStore) SetOccupied(ctx context.Context, resourceID, owner string, at time.Time) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()

	row := occupationRow{ResourceID: resourceID, OccupiedBy: owner, OccupiedAt: &at}
	err := s.db.WithContext(cctx).Table(s.tableName).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "resource_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"occupied_by", "occupied_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set occupation %s: %w", resourceID, err)
	}
	return nil
}

// Clear implements Writer.Clear.
func (s *GormStore) Clear(ctx context.Context, resourceID string) error {
	cctx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.db.WithContext(cctx).Table(s.tableName).
		Where("resource_id = ?", resourceID).
		Updates(map[string]any{"occupied_by": "", "occupied_at": nil}).Error
	if err != nil {
		return fmt.Errorf("clear occupation %s: %w", resourceID, err)
	}
	return nil
}
