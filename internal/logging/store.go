package logging

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/models"
	"gorm.io/gorm"
)

// Store persists and reads sync log rows.
type Store interface {
	Write(ctx context.Context, entries []models.SyncLog) error
	Recent(ctx context.Context, q Query) ([]models.SyncLog, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Query narrows a Recent listing. Zero values mean no filter.
type Query struct {
	Level string
	Email string
	Event string
	Limit int
}

const (
	defaultLimit = 100
	maxLimit     = 500
)

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultLimit
	case q.Limit > maxLimit:
		return maxLimit
	default:
		return q.Limit
	}
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Write(ctx context.Context, entries []models.SyncLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(entries, 50).Error
}

func (s *GormStore) Recent(ctx context.Context, q Query) ([]models.SyncLog, error) {
	tx := s.db.WithContext(ctx).Model(&models.SyncLog{})
	if q.Level != "" {
		tx = tx.Where("level = ?", q.Level)
	}
	if q.Email != "" {
		tx = tx.Where("email = ?", q.Email)
	}
	if q.Event != "" {
		tx = tx.Where("event = ?", q.Event)
	}

	var rows []models.SyncLog
	err := tx.Order("timestamp DESC").Limit(q.limit()).Find(&rows).Error
	return rows, err
}

func (s *GormStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.SyncLog{})
	return result.RowsAffected, result.Error
}
