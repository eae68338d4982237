package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"

	"gorm.io/gorm"
)

type ProposalRepository struct {
	db *gorm.DB
}

func NewProposalRepository(db *gorm.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

func (r *ProposalRepository) Create(ctx context.Context, proposal *models.Proposal) error {
	return r.db.WithContext(ctx).Create(proposal).Error
}

func (r *ProposalRepository) GetByID(ctx context.Context, proposalID string) (*models.Proposal, error) {
	var proposal models.Proposal
	err := r.db.WithContext(ctx).
		Where("id = ?", proposalID).
		First(&proposal).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (r *ProposalRepository) ListByClub(ctx context.Context, clubID string, status models.ProposalStatus, offset, limit int) ([]models.Proposal, error) {
	var proposals []models.Proposal
	query := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Order("created_at DESC")

	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Offset(offset).Limit(limit)
	}

	err := query.Find(&proposals).Error
	return proposals, err
}

func (r *ProposalRepository) CountByClub(ctx context.Context, clubID string, status models.ProposalStatus) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("club_id = ?", clubID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Count(&count).Error
	return count, err
}

// GetExpiredActive returns proposals still marked active whose voting
// window has closed.
func (r *ProposalRepository) GetExpiredActive(ctx context.Context, clubID string, now time.Time) ([]models.Proposal, error) {
	var proposals []models.Proposal
	err := r.db.WithContext(ctx).
		Where("club_id = ? AND status = ? AND voting_ends_at <= ?",
			clubID, models.ProposalStatusActive, now).
		Find(&proposals).Error
	return proposals, err
}

// HasOpenSystemProposal reports whether an active engine-raised proposal
// of the given type already exists, so the circuit breaker does not
// stack duplicates.
func (r *ProposalRepository) HasOpenSystemProposal(ctx context.Context, clubID string, ptype models.ProposalType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("club_id = ? AND type = ? AND proposer_id = ? AND status = ?",
			clubID, ptype, models.SystemProposer, models.ProposalStatusActive).
		Count(&count).Error
	return count > 0, err
}

// AddVote bumps the tally column atomically, guarded on status so a
// racing resolver cannot count a vote into a closed proposal.
func (r *ProposalRepository) AddVote(ctx context.Context, tx *gorm.DB, proposalID string, forVote bool) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	column := "votes_against"
	if forVote {
		column = "votes_for"
	}
	result := db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("id = ? AND status = ?", proposalID, models.ProposalStatusActive).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	return result.RowsAffected > 0, result.Error
}

// TransitionStatus performs a conditional state change; only one of any
// number of racing callers observes rowsAffected > 0.
func (r *ProposalRepository) TransitionStatus(ctx context.Context, tx *gorm.DB, proposalID string, from, to models.ProposalStatus, at time.Time) (bool, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case models.ProposalStatusPassed, models.ProposalStatusFailed:
		updates["resolved_at"] = at
	case models.ProposalStatusExecuted:
		updates["executed_at"] = at
	}
	result := db.WithContext(ctx).
		Model(&models.Proposal{}).
		Where("id = ? AND status = ?", proposalID, from).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}
