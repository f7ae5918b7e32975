package settings

import (
	"context"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Value is a stored option with its declared type.
type Value struct {
	Value string
	Type  string
}

// Repository persists options as key/value rows.
type Repository interface {
	LoadAll(ctx context.Context) (map[string]Value, error)
	SaveAll(ctx context.Context, values map[string]Value) error
}

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) LoadAll(ctx context.Context) (map[string]Value, error) {
	var rows []models.Setting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	out := make(map[string]Value, len(rows))
	for _, row := range rows {
		out[row.Key] = Value{Value: row.Value, Type: row.Type}
	}
	return out, nil
}

// SaveAll upserts every value in one transaction.
func (r *GormRepository) SaveAll(ctx context.Context, values map[string]Value) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, v := range values {
			row := models.Setting{Key: key, Value: v.Value, Type: v.Type}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "type", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("failed to save setting %s: %w", key, err)
			}
		}
		return nil
	})
}
