package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"
	"github.com/rsnash92/builda-club-sub000/internal/repository"
	"github.com/rsnash92/builda-club-sub000/pkg/errors"
	"github.com/rsnash92/builda-club-sub000/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MintingService specializes the proposal engine for earn-token
// requests: approved minters open requests, a fixed count of distinct
// approvals passes them, and daily/monthly/ratio caps gate execution.
type MintingService struct {
	db           *gorm.DB
	proposalRepo *repository.ProposalRepository
	voteRepo     *repository.VoteRepository
	clubRepo     *repository.ClubRepository
	memberRepo   *repository.MemberRepository
	ledgerRepo   *repository.LedgerRepository
	govRepo      *repository.GovernanceRepository
}

func NewMintingService(
	db *gorm.DB,
	proposalRepo *repository.ProposalRepository,
	voteRepo *repository.VoteRepository,
	clubRepo *repository.ClubRepository,
	memberRepo *repository.MemberRepository,
	ledgerRepo *repository.LedgerRepository,
	govRepo *repository.GovernanceRepository,
) *MintingService {
	return &MintingService{
		db:           db,
		proposalRepo: proposalRepo,
		voteRepo:     voteRepo,
		clubRepo:     clubRepo,
		memberRepo:   memberRepo,
		ledgerRepo:   ledgerRepo,
		govRepo:      govRepo,
	}
}

// RequestMint opens a TOKEN_MINT proposal for the caller's own account.
// The per-request size check runs here; the day/month/ratio sums are
// checked again at execution because balances move while approvals
// gather.
func (s *MintingService) RequestMint(ctx context.Context, clubID, requesterID, activity string, requestedTokens int64) (*models.Proposal, error) {
	if requestedTokens <= 0 {
		return nil, errors.New(errors.ErrInvalidAmount, "requested token amount must be positive", nil)
	}

	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}

	member, err := s.memberRepo.GetByUser(ctx, clubID, requesterID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive {
		return nil, errors.New(errors.ErrMemberNotFound, "requester is not an active member", nil)
	}

	approved, err := s.govRepo.IsApprovedMinter(ctx, clubID, requesterID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, errors.New(errors.ErrNotApprovedMinter, "requester is not an approved minter", nil)
	}

	limits, err := s.getLimits(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if requestedTokens > limits.MaxTokensPerMemberPerDay {
		return nil, errors.SafeguardRejected(fmt.Sprintf(
			"requested %d tokens exceeds the daily cap of %d",
			requestedTokens, limits.MaxTokensPerMemberPerDay))
	}

	cfg, err := s.govRepo.GetSafeguards(ctx, clubID)
	if err != nil {
		return nil, err
	}
	eligible, err := s.memberRepo.CountActive(ctx, clubID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	proposal := &models.Proposal{
		ID:         uuid.NewString(),
		ClubID:     clubID,
		Type:       models.ProposalTypeTokenMint,
		ProposerID: requesterID,
		Title:      fmt.Sprintf("Mint %d work tokens: %s", requestedTokens, activity),
		Payload: models.JSONB{
			"activity":         activity,
			"recipient":        requesterID,
			"requested_tokens": requestedTokens,
		},
		Status:            models.ProposalStatusActive,
		EligibleVoters:    int(eligible),
		RequiredApprovals: limits.RequiredApprovals,
		VotingEndsAt:      now.Add(7 * 24 * time.Hour),
	}
	if cfg != nil {
		proposal.QuorumPct = cfg.QuorumPct
		proposal.ThresholdPct = cfg.ThresholdPct
	}

	if err := s.proposalRepo.Create(ctx, proposal); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"proposal_id": proposal.ID,
		"club_id":     clubID,
		"requester":   requesterID,
		"tokens":      requestedTokens,
	}).Info("mint request opened")

	return proposal, nil
}

// CastVerdict records an APPROVE/REJECT on a mint request. The third
// distinct approval passes it immediately; a reject does not fail it
// outright, but once approvals can no longer reach the bar the request
// fails.
func (s *MintingService) CastVerdict(ctx context.Context, proposalID, voterID string, approve bool) (*models.Proposal, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, errors.New(errors.ErrProposalNotFound, "mint request not found", nil)
	}
	if proposal.Type != models.ProposalTypeTokenMint {
		return nil, errors.New(errors.ErrInvalidPayload, "proposal is not a mint request", nil)
	}
	if proposal.Status != models.ProposalStatusActive {
		return nil, errors.New(errors.ErrProposalNotActive, "mint request is not open", nil)
	}
	if time.Now().After(proposal.VotingEndsAt) {
		return nil, errors.New(errors.ErrVotingClosed, "mint request approval window has closed", nil)
	}

	member, err := s.memberRepo.GetByUser(ctx, proposal.ClubID, voterID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive {
		return nil, errors.New(errors.ErrMemberNotFound, "voter is not an active member", nil)
	}

	verdict := models.VerdictReject
	if approve {
		verdict = models.VerdictApprove
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.voteRepo.Exists(ctx, tx, proposalID, voterID)
		if err != nil {
			return err
		}
		if exists {
			return errors.New(errors.ErrDuplicateVote, "member has already given a verdict", nil)
		}
		vote := &models.Vote{
			ProposalID: proposalID,
			VoterID:    voterID,
			Verdict:    verdict,
		}
		if err := s.voteRepo.Create(ctx, tx, vote); err != nil {
			return err
		}
		counted, err := s.proposalRepo.AddVote(ctx, tx, proposalID, approve)
		if err != nil {
			return err
		}
		if !counted {
			return errors.New(errors.ErrProposalNotActive, "mint request closed while voting", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	proposal, err = s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if proposal.Status == models.ProposalStatusActive {
		switch {
		case proposal.VotesFor >= proposal.RequiredApprovals:
			if _, err := s.proposalRepo.TransitionStatus(ctx, nil, proposalID, models.ProposalStatusActive, models.ProposalStatusPassed, now); err != nil {
				return nil, err
			}
		case s.approvalUnreachable(proposal):
			if _, err := s.proposalRepo.TransitionStatus(ctx, nil, proposalID, models.ProposalStatusActive, models.ProposalStatusFailed, now); err != nil {
				return nil, err
			}
		}
		proposal, err = s.proposalRepo.GetByID(ctx, proposalID)
		if err != nil {
			return nil, err
		}
	}

	return proposal, nil
}

// approvalUnreachable reports whether the remaining electorate is too
// small for approvals to reach the required count.
func (s *MintingService) approvalUnreachable(proposal *models.Proposal) bool {
	remaining := proposal.EligibleVoters - proposal.TotalVotes()
	if remaining < 0 {
		remaining = 0
	}
	return proposal.VotesFor+remaining < proposal.RequiredApprovals
}

// CheckExecution enforces the minting caps against current ledger
// state: the per-request size, the member's earned sums for the day and
// month, and the clubwide work-to-capital token ratio.
func (s *MintingService) CheckExecution(ctx context.Context, clubID, userID string, tokens int64) error {
	limits, err := s.getLimits(ctx, clubID)
	if err != nil {
		return err
	}

	if tokens > limits.MaxTokensPerMemberPerDay {
		return errors.SafeguardRejected(fmt.Sprintf(
			"mint of %d tokens exceeds the daily cap of %d",
			tokens, limits.MaxTokensPerMemberPerDay))
	}

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	earnedToday, err := s.ledgerRepo.SumEarnedSince(ctx, clubID, userID, dayStart)
	if err != nil {
		return err
	}
	if earnedToday+tokens > limits.MaxTokensPerMemberPerDay {
		return errors.SafeguardRejected(fmt.Sprintf(
			"member already earned %d tokens today, cap is %d",
			earnedToday, limits.MaxTokensPerMemberPerDay))
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	earnedThisMonth, err := s.ledgerRepo.SumEarnedSince(ctx, clubID, userID, monthStart)
	if err != nil {
		return err
	}
	if earnedThisMonth+tokens > limits.MaxTokensPerMemberPerMonth {
		return errors.SafeguardRejected(fmt.Sprintf(
			"member already earned %d tokens this month, cap is %d",
			earnedThisMonth, limits.MaxTokensPerMemberPerMonth))
	}

	purchased, earned, err := s.memberRepo.SumTokens(ctx, clubID)
	if err != nil {
		return err
	}
	capacity := int64(float64(purchased) * limits.MaxWorkTokenRatioOfCapital)
	if earned+tokens > capacity {
		return errors.New(errors.ErrWorkTokenCapExceeded, fmt.Sprintf(
			"minting %d would put earned tokens at %d, above %.0f%% of %d purchased",
			tokens, earned+tokens, limits.MaxWorkTokenRatioOfCapital*100, purchased), nil)
	}

	return nil
}

func (s *MintingService) getLimits(ctx context.Context, clubID string) (*models.MintingLimits, error) {
	limits, err := s.govRepo.GetMintingLimits(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if limits == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club has no minting limits", nil)
	}
	return limits, nil
}
