package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"

	"gorm.io/gorm"
)

type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

func (r *MemberRepository) Create(ctx context.Context, member *models.Member) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *MemberRepository) GetByUser(ctx context.Context, clubID, userID string) (*models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		First(&member).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *MemberRepository) GetAllByClub(ctx context.Context, clubID string) ([]models.Member, error) {
	var members []models.Member
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Find(&members).Error
	return members, err
}

func (r *MemberRepository) GetByClubPaginated(ctx context.Context, clubID string, offset, limit int) ([]models.Member, error) {
	var members []models.Member
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Offset(offset).
		Limit(limit).
		Find(&members).Error
	return members, err
}

func (r *MemberRepository) CountActive(ctx context.Context, clubID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("club_id = ? AND is_active = ?", clubID, true).
		Count(&count).Error
	return count, err
}

// CountExitedSince counts members that left the club after the cutoff,
// feeding the circuit-breaker exit window.
func (r *MemberRepository) CountExitedSince(ctx context.Context, clubID string, cutoff time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("club_id = ? AND is_active = ? AND left_at >= ?", clubID, false, cutoff).
		Count(&count).Error
	return count, err
}

// SumTokens returns clubwide purchased and earned totals.
func (r *MemberRepository) SumTokens(ctx context.Context, clubID string) (purchased, earned int64, err error) {
	type sums struct {
		Purchased int64
		Earned    int64
	}
	var s sums
	err = r.db.WithContext(ctx).
		Model(&models.Member{}).
		Select("COALESCE(SUM(purchased_tokens),0) as purchased, COALESCE(SUM(earned_tokens),0) as earned").
		Where("club_id = ?", clubID).
		Scan(&s).Error
	return s.Purchased, s.Earned, err
}

func (r *MemberRepository) Save(ctx context.Context, tx *gorm.DB, member *models.Member) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).Save(member).Error
}
