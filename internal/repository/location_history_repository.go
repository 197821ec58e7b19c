package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tracking-service/internal/model"
)

type LocationHistoryRepository struct {
	db *gorm.DB
}

func NewLocationHistoryRepository(db *gorm.DB) *LocationHistoryRepository {
	return &LocationHistoryRepository{db: db}
}

func (r *LocationHistoryRepository) Append(ctx context.Context, entry *model.LocationHistoryEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *LocationHistoryRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.LocationHistoryEntry, error) {
	var entries []model.LocationHistoryEntry
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("received_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *LocationHistoryRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&model.LocationHistoryEntry{}).Error
}
