package repository

import (
	"context"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"

	"gorm.io/gorm"
)

type BackupRepository struct {
	db *gorm.DB
}

func NewBackupRepository(db *gorm.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

func (r *BackupRepository) Create(ctx context.Context, backup *models.SnapshotBackup) error {
	return r.db.WithContext(ctx).Create(backup).Error
}

func (r *BackupRepository) ListByClub(ctx context.Context, clubID string, limit int) ([]models.SnapshotBackup, error) {
	var backups []models.SnapshotBackup
	query := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&backups).Error
	return backups, err
}

func (r *BackupRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.SnapshotBackup{})
	return result.RowsAffected, result.Error
}
