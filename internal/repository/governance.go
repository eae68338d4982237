package repository

import (
	"context"
	"errors"

	"github.com/rsnash92/builda-club-sub000/internal/models"

	"gorm.io/gorm"
)

type GovernanceRepository struct {
	db *gorm.DB
}

func NewGovernanceRepository(db *gorm.DB) *GovernanceRepository {
	return &GovernanceRepository{db: db}
}

func (r *GovernanceRepository) CreateSafeguards(ctx context.Context, cfg *models.SafeguardConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *GovernanceRepository) GetSafeguards(ctx context.Context, clubID string) (*models.SafeguardConfig, error) {
	var cfg models.SafeguardConfig
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		First(&cfg).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *GovernanceRepository) UpdateSafeguards(ctx context.Context, cfg *models.SafeguardConfig) error {
	return r.db.WithContext(ctx).Save(cfg).Error
}

func (r *GovernanceRepository) CreateMintingLimits(ctx context.Context, limits *models.MintingLimits) error {
	return r.db.WithContext(ctx).Create(limits).Error
}

func (r *GovernanceRepository) GetMintingLimits(ctx context.Context, clubID string) (*models.MintingLimits, error) {
	var limits models.MintingLimits
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		First(&limits).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &limits, nil
}

func (r *GovernanceRepository) AddApprovedMinter(ctx context.Context, minter *models.ApprovedMinter) error {
	return r.db.WithContext(ctx).Create(minter).Error
}

func (r *GovernanceRepository) IsApprovedMinter(ctx context.Context, clubID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ApprovedMinter{}).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *GovernanceRepository) RemoveApprovedMinter(ctx context.Context, clubID, userID string) error {
	return r.db.WithContext(ctx).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Delete(&models.ApprovedMinter{}).Error
}
