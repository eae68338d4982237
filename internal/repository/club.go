package repository

import (
	"context"
	"errors"

	"github.com/rsnash92/builda-club-sub000/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ClubRepository struct {
	db *gorm.DB
}

func NewClubRepository(db *gorm.DB) *ClubRepository {
	return &ClubRepository{db: db}
}

func (r *ClubRepository) Create(ctx context.Context, club *models.Club) error {
	return r.db.WithContext(ctx).Create(club).Error
}

func (r *ClubRepository) GetByID(ctx context.Context, clubID string) (*models.Club, error) {
	var club models.Club
	err := r.db.WithContext(ctx).
		Where("id = ?", clubID).
		First(&club).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &club, nil
}

func (r *ClubRepository) List(ctx context.Context, offset, limit int) ([]models.Club, error) {
	var clubs []models.Club
	err := r.db.WithContext(ctx).
		Offset(offset).
		Limit(limit).
		Find(&clubs).Error
	return clubs, err
}

func (r *ClubRepository) ListAll(ctx context.Context) ([]models.Club, error) {
	var clubs []models.Club
	err := r.db.WithContext(ctx).Find(&clubs).Error
	return clubs, err
}

func (r *ClubRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Club{}).
		Count(&count).Error
	return count, err
}

// Delete removes a club only when it has no members left; clubs never
// orphan their membership.
func (r *ClubRepository) Delete(ctx context.Context, clubID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var members int64
		if err := tx.Model(&models.Member{}).
			Where("club_id = ?", clubID).
			Count(&members).Error; err != nil {
			return err
		}
		if members > 0 {
			return errors.New("club still has members")
		}
		return tx.Where("id = ?", clubID).Delete(&models.Club{}).Error
	})
}

// AdjustTreasury applies delta atomically and rejects a negative result
// at the SQL level.
func (r *ClubRepository) AdjustTreasury(ctx context.Context, tx *gorm.DB, clubID string, delta decimal.Decimal) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	result := db.WithContext(ctx).
		Model(&models.Club{}).
		Where("id = ? AND treasury_balance + ? >= 0", clubID, delta).
		UpdateColumn("treasury_balance", gorm.Expr("treasury_balance + ?", delta))
	return result.RowsAffected > 0, result.Error
}
