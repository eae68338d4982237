package repository

import (
	"context"

	"github.com/rsnash92/builda-club-sub000/internal/models"

	"gorm.io/gorm"
)

type VoteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

func (r *VoteRepository) Create(ctx context.Context, tx *gorm.DB, vote *models.Vote) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).Create(vote).Error
}

// Exists checks the one-vote-per-member constraint ahead of the unique
// index, so callers get a typed error instead of a driver error.
func (r *VoteRepository) Exists(ctx context.Context, tx *gorm.DB, proposalID, voterID string) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Vote{}).
		Where("proposal_id = ? AND voter_id = ?", proposalID, voterID).
		Count(&count).Error
	return count > 0, err
}

func (r *VoteRepository) GetByProposal(ctx context.Context, proposalID string) ([]models.Vote, error) {
	var votes []models.Vote
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("created_at ASC").
		Find(&votes).Error
	return votes, err
}
