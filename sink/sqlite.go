package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/0x5487/lob"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SnapshotRecord is one snapshot header row.
type SnapshotRecord struct {
	ID       uint   `gorm:"primaryKey"`
	RunID    string `gorm:"index:idx_run_seq,unique"`
	Sequence uint64 `gorm:"index:idx_run_seq,unique"`
	FeedTime uint64
	TakenAt  time.Time
	Books    int
}

// LevelRecord is one aggregated price level of a snapshot.
type LevelRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SnapshotID uint   `gorm:"index:idx_snapshot_locate"`
	Locate     uint16 `gorm:"index:idx_snapshot_locate"`
	Symbol     string
	Side       string
	Level      int // 0 is the best price
	Price      string
	Ticks      uint32
	Volume     uint64
	Orders     int
}

// SQLiteSink stores snapshot headers and levels in SQLite. Individual
// orders are not stored.
type SQLiteSink struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewSQLiteSink(db)
}

// NewSQLiteSink migrates db and wraps it.
func NewSQLiteSink(db *gorm.DB) (*SQLiteSink, error) {
	if err := db.AutoMigrate(&SnapshotRecord{}, &LevelRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

func (s *SQLiteSink) WriteSnapshot(ctx context.Context, snap *lob.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		header := SnapshotRecord{
			RunID:    snap.RunID,
			Sequence: snap.Sequence,
			FeedTime: snap.FeedTime,
			TakenAt:  snap.TakenAt,
			Books:    len(snap.Books),
		}
		if err := tx.Create(&header).Error; err != nil {
			return err
		}

		var levels []LevelRecord
		for _, book := range snap.Books {
			levels = appendLevels(levels, header.ID, book, lob.Buy, book.Bids)
			levels = appendLevels(levels, header.ID, book, lob.Sell, book.Asks)
		}
		if len(levels) == 0 {
			return nil
		}
		return tx.CreateInBatches(levels, 500).Error
	})
}

func appendLevels(dst []LevelRecord, snapshotID uint, book lob.BookSnapshot, side lob.Side, levels []lob.LevelSnapshot) []LevelRecord {
	for i, l := range levels {
		dst = append(dst, LevelRecord{
			SnapshotID: snapshotID,
			Locate:     book.Locate,
			Symbol:     book.Symbol,
			Side:       side.String(),
			Level:      i,
			Price:      l.Price.String(),
			Ticks:      l.Ticks,
			Volume:     l.Volume,
			Orders:     len(l.Orders),
		})
	}
	return dst
}

// Latest returns the newest snapshot header of runID, or nil.
func (s *SQLiteSink) Latest(runID string) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	err := s.db.Where("run_id = ?", runID).Order("sequence DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Levels returns the levels of locate in a snapshot, bids then asks, best
// first.
func (s *SQLiteSink) Levels(snapshotID uint, locate uint16) ([]LevelRecord, error) {
	var levels []LevelRecord
	err := s.db.Where("snapshot_id = ? AND locate = ?", snapshotID, locate).
		Order("side ASC, level ASC").
		Find(&levels).Error
	return levels, err
}

func (s *SQLiteSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
