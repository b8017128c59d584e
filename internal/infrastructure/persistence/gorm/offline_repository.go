package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
)

// OfflineRepository implements the offline catalog using GORM
type OfflineRepository struct {
	db *gorm.DB
}

// NewOfflineRepository creates a new offline catalog repository
func NewOfflineRepository(db *gorm.DB) *OfflineRepository {
	return &OfflineRepository{db: db}
}

// Save inserts or replaces the entry for its item
func (r *OfflineRepository) Save(ctx context.Context, entry *download.OfflineEntry) error {
	model, err := toOfflineModel(entry)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "path", "size", "snapshot", "stored_at", "updated_at"}),
	}).Create(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save offline entry: %w", result.Error)
	}
	return nil
}

// FindByItemID finds the entry for an item
func (r *OfflineRepository) FindByItemID(ctx context.Context, itemID string) (*download.OfflineEntry, error) {
	var model OfflineEntryModel

	result := r.db.WithContext(ctx).First(&model, "item_id = ?", itemID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, download.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to find offline entry: %w", result.Error)
	}
	return model.toDomain()
}

// LoadAll returns every decodable entry, oldest first, plus the item ids
// of rows whose snapshot cannot be decoded
func (r *OfflineRepository) LoadAll(ctx context.Context) ([]*download.OfflineEntry, []string, error) {
	var models []OfflineEntryModel

	result := r.db.WithContext(ctx).Order("stored_at ASC").Find(&models)
	if result.Error != nil {
		return nil, nil, fmt.Errorf("failed to load offline entries: %w", result.Error)
	}

	entries := make([]*download.OfflineEntry, 0, len(models))
	var corrupt []string
	for i := range models {
		entry, err := models[i].toDomain()
		if err != nil {
			corrupt = append(corrupt, models[i].ItemID)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, corrupt, nil
}

// Delete deletes the entry for an item
func (r *OfflineRepository) Delete(ctx context.Context, itemID string) error {
	result := r.db.WithContext(ctx).Delete(&OfflineEntryModel{}, "item_id = ?", itemID)
	if result.Error != nil {
		return fmt.Errorf("failed to delete offline entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return download.ErrEntryNotFound
	}
	return nil
}
