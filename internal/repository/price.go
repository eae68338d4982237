package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"

	"gorm.io/gorm"
)

type PriceRepository struct {
	db *gorm.DB
}

func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

func (r *PriceRepository) Create(ctx context.Context, tx *gorm.DB, point *models.PricePoint) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).Create(point).Error
}

func (r *PriceRepository) GetHistory(ctx context.Context, clubID string, limit int) ([]models.PricePoint, error) {
	var points []models.PricePoint
	query := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Order("effective_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&points).Error
	return points, err
}

// GetLatestBefore returns the last price change that took effect before
// the cutoff, or nil when the club's price never changed before it.
func (r *PriceRepository) GetLatestBefore(ctx context.Context, clubID string, cutoff time.Time) (*models.PricePoint, error) {
	var point models.PricePoint
	err := r.db.WithContext(ctx).
		Where("club_id = ? AND effective_at < ?", clubID, cutoff).
		Order("effective_at DESC").
		First(&point).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &point, nil
}

func (r *PriceRepository) GetEarliest(ctx context.Context, clubID string) (*models.PricePoint, error) {
	var point models.PricePoint
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Order("effective_at ASC").
		First(&point).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &point, nil
}
