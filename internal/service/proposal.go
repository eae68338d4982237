package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"
	"github.com/rsnash92/builda-club-sub000/internal/repository"
	"github.com/rsnash92/builda-club-sub000/internal/safeguard"
	"github.com/rsnash92/builda-club-sub000/pkg/errors"
	"github.com/rsnash92/builda-club-sub000/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MintPolicy is the minting workflow's execution-time cap check,
// injected so the proposal engine stays ignorant of minting rules.
type MintPolicy interface {
	CheckExecution(ctx context.Context, clubID, userID string, tokens int64) error
}

// ProposalService runs the governance state machine: creation with
// safeguard validation, one-vote-per-member tallying, quorum and
// threshold resolution, and idempotent execution against the ledger.
type ProposalService struct {
	db               *gorm.DB
	ledger           *LedgerService
	proposalRepo     *repository.ProposalRepository
	voteRepo         *repository.VoteRepository
	clubRepo         *repository.ClubRepository
	memberRepo       *repository.MemberRepository
	ledgerRepo       *repository.LedgerRepository
	govRepo          *repository.GovernanceRepository
	priceRepo        *repository.PriceRepository
	mintPolicy       MintPolicy
	votingWindowDays int
}

func NewProposalService(
	db *gorm.DB,
	ledger *LedgerService,
	proposalRepo *repository.ProposalRepository,
	voteRepo *repository.VoteRepository,
	clubRepo *repository.ClubRepository,
	memberRepo *repository.MemberRepository,
	ledgerRepo *repository.LedgerRepository,
	govRepo *repository.GovernanceRepository,
	priceRepo *repository.PriceRepository,
	mintPolicy MintPolicy,
	votingWindowDays int,
) *ProposalService {
	if votingWindowDays <= 0 {
		votingWindowDays = 7
	}
	return &ProposalService{
		db:               db,
		ledger:           ledger,
		proposalRepo:     proposalRepo,
		voteRepo:         voteRepo,
		clubRepo:         clubRepo,
		memberRepo:       memberRepo,
		ledgerRepo:       ledgerRepo,
		govRepo:          govRepo,
		priceRepo:        priceRepo,
		mintPolicy:       mintPolicy,
		votingWindowDays: votingWindowDays,
	}
}

// pricingState assembles the safeguard view of a club's pricing: the
// current price, the last change time, and the price in force at the
// start of the current quarter, reconstructed from price history.
func (s *ProposalService) pricingState(ctx context.Context, club *models.Club, now time.Time) (safeguard.PricingState, error) {
	state := safeguard.PricingState{
		CurrentPrice:      club.EntryPrice,
		LastPriceChangeAt: club.LastPriceChangeAt,
	}

	quarterStart := safeguard.QuarterStart(now)
	point, err := s.priceRepo.GetLatestBefore(ctx, club.ID, quarterStart)
	if err != nil {
		return state, err
	}
	if point != nil {
		state.QuarterStartPrice = point.NewPrice
		return state, nil
	}

	// No change before this quarter: if the price moved within the
	// quarter the opening price is the earliest recorded old price,
	// otherwise it never moved at all.
	earliest, err := s.priceRepo.GetEarliest(ctx, club.ID)
	if err != nil {
		return state, err
	}
	if earliest != nil {
		state.QuarterStartPrice = earliest.OldPrice
	} else {
		state.QuarterStartPrice = club.EntryPrice
	}
	return state, nil
}

// CreateProposal opens a governance proposal in ACTIVE state. Price and
// treasury payloads are validated against the safeguards here, at
// creation, so members never waste a voting cycle on a proposal that
// could not execute.
func (s *ProposalService) CreateProposal(ctx context.Context, clubID, proposerID string, ptype models.ProposalType, title string, payload models.JSONB, votingDays int) (*models.Proposal, error) {
	if !ptype.Valid() {
		return nil, errors.New(errors.ErrInvalidPayload, "unknown proposal type", nil)
	}
	if ptype == models.ProposalTypeTokenMint {
		return nil, errors.New(errors.ErrInvalidPayload, "token mint requests go through the minting workflow", nil)
	}

	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}

	if proposerID != models.SystemProposer {
		member, err := s.memberRepo.GetByUser(ctx, clubID, proposerID)
		if err != nil {
			return nil, err
		}
		if member == nil || !member.IsActive {
			return nil, errors.New(errors.ErrMemberNotFound, "proposer is not an active member", nil)
		}
	}

	cfg, err := s.govRepo.GetSafeguards(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club has no safeguard config", nil)
	}

	now := time.Now()
	switch ptype {
	case models.ProposalTypePriceChange:
		newPrice, err := payloadDecimal(payload, "new_price")
		if err != nil {
			return nil, err
		}
		state, err := s.pricingState(ctx, club, now)
		if err != nil {
			return nil, err
		}
		// System proposals come from the circuit breaker, which must be
		// able to cut the price inside the cooldown window.
		if proposerID == models.SystemProposer {
			state.LastPriceChangeAt = nil
		}
		if result := safeguard.CheckPriceChange(state, cfg, newPrice, now); !result.Allowed {
			return nil, errors.SafeguardRejected(result.Reason)
		}
	case models.ProposalTypeTreasuryAllocation:
		amount, err := payloadDecimal(payload, "amount")
		if err != nil {
			return nil, err
		}
		if result := safeguard.CheckTreasuryAllocation(club.TreasuryBalance, amount); !result.Allowed {
			return nil, errors.SafeguardRejected(result.Reason)
		}
	}

	eligible, err := s.memberRepo.CountActive(ctx, clubID)
	if err != nil {
		return nil, err
	}

	if votingDays <= 0 {
		votingDays = s.votingWindowDays
	}

	proposal := &models.Proposal{
		ID:             uuid.NewString(),
		ClubID:         clubID,
		Type:           ptype,
		ProposerID:     proposerID,
		Title:          title,
		Payload:        payload,
		Status:         models.ProposalStatusActive,
		EligibleVoters: int(eligible),
		QuorumPct:      cfg.QuorumPct,
		ThresholdPct:   cfg.ThresholdPct,
		VotingEndsAt:   now.Add(time.Duration(votingDays) * 24 * time.Hour),
	}

	if err := s.proposalRepo.Create(ctx, proposal); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"proposal_id": proposal.ID,
		"club_id":     clubID,
		"type":        ptype,
		"proposer":    proposerID,
		"ends_at":     proposal.VotingEndsAt,
	}).Info("proposal created")

	return proposal, nil
}

// CastVote records a FOR/AGAINST vote. Each member votes once; the
// unique (proposal, voter) index backs the explicit check. When the
// whole electorate has voted the proposal resolves early.
func (s *ProposalService) CastVote(ctx context.Context, proposalID, voterID string, verdict models.VoteVerdict) (*models.Proposal, error) {
	if verdict != models.VerdictFor && verdict != models.VerdictAgainst {
		return nil, errors.New(errors.ErrInvalidPayload, "verdict must be for or against", nil)
	}

	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, errors.New(errors.ErrProposalNotFound, "proposal not found", nil)
	}
	if proposal.Type == models.ProposalTypeTokenMint {
		return nil, errors.New(errors.ErrInvalidPayload, "mint requests take approve/reject verdicts", nil)
	}
	if proposal.Status != models.ProposalStatusActive {
		return nil, errors.New(errors.ErrProposalNotActive, "proposal is not open for voting", nil)
	}

	now := time.Now()
	if now.After(proposal.VotingEndsAt) {
		// The sweep may not have run yet; settle the proposal on the way out.
		if _, err := s.resolve(ctx, proposal, now); err != nil {
			logger.Error("failed to resolve expired proposal:", proposalID, err)
		}
		return nil, errors.New(errors.ErrVotingClosed, "voting window has closed", nil)
	}

	member, err := s.memberRepo.GetByUser(ctx, proposal.ClubID, voterID)
	if err != nil {
		return nil, err
	}
	if member == nil || !member.IsActive {
		return nil, errors.New(errors.ErrMemberNotFound, "voter is not an active member", nil)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.voteRepo.Exists(ctx, tx, proposalID, voterID)
		if err != nil {
			return err
		}
		if exists {
			return errors.New(errors.ErrDuplicateVote, "member has already voted", nil)
		}
		vote := &models.Vote{
			ProposalID: proposalID,
			VoterID:    voterID,
			Verdict:    verdict,
		}
		if err := s.voteRepo.Create(ctx, tx, vote); err != nil {
			return err
		}
		counted, err := s.proposalRepo.AddVote(ctx, tx, proposalID, verdict == models.VerdictFor)
		if err != nil {
			return err
		}
		if !counted {
			return errors.New(errors.ErrProposalNotActive, "proposal closed while voting", nil)
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

	// Early resolution once every eligible member has spoken.
	if proposal.Status == models.ProposalStatusActive &&
		proposal.EligibleVoters > 0 &&
		proposal.TotalVotes() >= proposal.EligibleVoters {
		return s.resolve(ctx, proposal, now)
	}

	return proposal, nil
}

// resolve settles an active proposal into PASSED or FAILED. The
// conditional transition means racing resolvers (the sweep, an on-vote
// check) cannot double-apply.
func (s *ProposalService) resolve(ctx context.Context, proposal *models.Proposal, now time.Time) (*models.Proposal, error) {
	to := models.ProposalStatusFailed

	if proposal.Type == models.ProposalTypeTokenMint {
		if proposal.VotesFor >= proposal.RequiredApprovals {
			to = models.ProposalStatusPassed
		}
	} else {
		total := proposal.TotalVotes()
		quorumMet := proposal.EligibleVoters > 0 &&
			float64(total)/float64(proposal.EligibleVoters)*100 >= proposal.QuorumPct
		// An exact tie never passes, whatever the threshold.
		thresholdMet := total > 0 &&
			proposal.VotesFor != proposal.VotesAgainst &&
			float64(proposal.VotesFor)/float64(total)*100 >= proposal.ThresholdPct
		if quorumMet && thresholdMet {
			to = models.ProposalStatusPassed
		}
	}

	won, err := s.proposalRepo.TransitionStatus(ctx, nil, proposal.ID, models.ProposalStatusActive, to, now)
	if err != nil {
		return nil, err
	}
	if won {
		logger.WithFields(map[string]interface{}{
			"proposal_id":   proposal.ID,
			"status":        to,
			"votes_for":     proposal.VotesFor,
			"votes_against": proposal.VotesAgainst,
			"eligible":      proposal.EligibleVoters,
		}).Info("proposal resolved")
	}

	return s.proposalRepo.GetByID(ctx, proposal.ID)
}

// ResolveExpired settles every active proposal in the club whose voting
// window has closed. Safe to call from multiple sweeps concurrently.
func (s *ProposalService) ResolveExpired(ctx context.Context, clubID string) ([]models.Proposal, error) {
	now := time.Now()
	expired, err := s.proposalRepo.GetExpiredActive(ctx, clubID, now)
	if err != nil {
		return nil, err
	}

	resolved := make([]models.Proposal, 0, len(expired))
	for i := range expired {
		p, err := s.resolve(ctx, &expired[i], now)
		if err != nil {
			logger.Error("failed to resolve proposal:", expired[i].ID, err)
			continue
		}
		resolved = append(resolved, *p)
	}
	return resolved, nil
}

// ExecuteProposal applies a PASSED proposal's payload to the ledger.
// Executing an EXECUTED proposal is a no-op. Safeguards are re-checked
// here because state may have drifted since creation; a rejection
// leaves the proposal PASSED for manual review.
func (s *ProposalService) ExecuteProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, errors.New(errors.ErrProposalNotFound, "proposal not found", nil)
	}
	if proposal.Status == models.ProposalStatusExecuted {
		return proposal, nil
	}
	if proposal.Status != models.ProposalStatusPassed {
		return nil, errors.New(errors.ErrProposalNotPassed, "only passed proposals can be executed", nil)
	}

	switch proposal.Type {
	case models.ProposalTypePriceChange:
		err = s.executePriceChange(ctx, proposal)
	case models.ProposalTypeTreasuryAllocation:
		err = s.executeTreasuryAllocation(ctx, proposal)
	case models.ProposalTypeTokenMint:
		err = s.executeMint(ctx, proposal)
	default:
		// Feature requests and rule changes have no ledger effect.
		_, err = s.proposalRepo.TransitionStatus(ctx, nil, proposal.ID, models.ProposalStatusPassed, models.ProposalStatusExecuted, time.Now())
	}
	if err != nil {
		return nil, err
	}

	return s.proposalRepo.GetByID(ctx, proposalID)
}

func (s *ProposalService) executePriceChange(ctx context.Context, proposal *models.Proposal) error {
	newPrice, err := payloadDecimal(proposal.Payload, "new_price")
	if err != nil {
		return err
	}

	// Execution mutates ledger state, so it runs under the same per-club
	// lock as every ledger service mutation.
	lock := s.ledger.locks.get(proposal.ClubID)
	lock.Lock()
	defer lock.Unlock()

	club, err := s.clubRepo.GetByID(ctx, proposal.ClubID)
	if err != nil {
		return err
	}
	if club == nil {
		return errors.New(errors.ErrClubNotFound, "club not found", nil)
	}

	now := time.Now()
	state, err := s.pricingState(ctx, club, now)
	if err != nil {
		return err
	}
	if proposal.ProposerID == models.SystemProposer {
		state.LastPriceChangeAt = nil
	}
	cfg, err := s.govRepo.GetSafeguards(ctx, proposal.ClubID)
	if err != nil {
		return err
	}
	if result := safeguard.CheckPriceChange(state, cfg, newPrice, now); !result.Allowed {
		return errors.SafeguardRejected(fmt.Sprintf("execution-time re-check failed: %s", result.Reason))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.proposalRepo.TransitionStatus(ctx, tx, proposal.ID, models.ProposalStatusPassed, models.ProposalStatusExecuted, now)
		if err != nil {
			return err
		}
		if !won {
			// Another executor got here first; nothing left to do.
			return nil
		}
		if err := tx.Model(&models.Club{}).
			Where("id = ?", proposal.ClubID).
			Updates(map[string]interface{}{
				"entry_price":          newPrice,
				"last_price_change_at": now,
			}).Error; err != nil {
			return err
		}
		point := &models.PricePoint{
			ClubID:      proposal.ClubID,
			OldPrice:    club.EntryPrice,
			NewPrice:    newPrice,
			ProposalID:  &proposal.ID,
			EffectiveAt: now,
		}
		return s.priceRepo.Create(ctx, tx, point)
	})
}

func (s *ProposalService) executeTreasuryAllocation(ctx context.Context, proposal *models.Proposal) error {
	amount, err := payloadDecimal(proposal.Payload, "amount")
	if err != nil {
		return err
	}

	lock := s.ledger.locks.get(proposal.ClubID)
	lock.Lock()
	defer lock.Unlock()

	club, err := s.clubRepo.GetByID(ctx, proposal.ClubID)
	if err != nil {
		return err
	}
	if club == nil {
		return errors.New(errors.ErrClubNotFound, "club not found", nil)
	}
	if result := safeguard.CheckTreasuryAllocation(club.TreasuryBalance, amount); !result.Allowed {
		return errors.SafeguardRejected(fmt.Sprintf("execution-time re-check failed: %s", result.Reason))
	}

	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.proposalRepo.TransitionStatus(ctx, tx, proposal.ID, models.ProposalStatusPassed, models.ProposalStatusExecuted, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		ok, err := s.clubRepo.AdjustTreasury(ctx, tx, proposal.ClubID, amount.Neg())
		if err != nil {
			return err
		}
		if !ok {
			// Rolls the transition back too, leaving the proposal PASSED.
			return errors.SafeguardRejected("execution-time re-check failed: treasury cannot cover allocation")
		}
		return nil
	})
}

func (s *ProposalService) executeMint(ctx context.Context, proposal *models.Proposal) error {
	recipient, err := payloadString(proposal.Payload, "recipient")
	if err != nil {
		return err
	}
	tokens, err := payloadInt64(proposal.Payload, "requested_tokens")
	if err != nil {
		return err
	}

	// The cap check and the credit run under the club's ledger lock so no
	// purchase, exit, or rival execution can slip between them. Caps are
	// enforced at execution, not creation: capital tokens may have moved
	// while the request was gathering approvals.
	lock := s.ledger.locks.get(proposal.ClubID)
	lock.Lock()
	defer lock.Unlock()

	if s.mintPolicy != nil {
		if err := s.mintPolicy.CheckExecution(ctx, proposal.ClubID, recipient, tokens); err != nil {
			return err
		}
	}

	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.proposalRepo.TransitionStatus(ctx, tx, proposal.ID, models.ProposalStatusPassed, models.ProposalStatusExecuted, now)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		result := tx.Model(&models.Member{}).
			Where("club_id = ? AND user_id = ?", proposal.ClubID, recipient).
			UpdateColumn("earned_tokens", gorm.Expr("earned_tokens + ?", tokens))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.New(errors.ErrMemberNotFound, "mint recipient not found", nil)
		}
		if err := tx.Model(&models.Club{}).
			Where("id = ?", proposal.ClubID).
			UpdateColumn("total_tokens", gorm.Expr("total_tokens + ?", tokens)).Error; err != nil {
			return err
		}
		var member models.Member
		if err := tx.Where("club_id = ? AND user_id = ?", proposal.ClubID, recipient).
			First(&member).Error; err != nil {
			return err
		}
		var club models.Club
		if err := tx.Where("id = ?", proposal.ClubID).First(&club).Error; err != nil {
			return err
		}
		entry := &models.LedgerEntry{
			ClubID:           proposal.ClubID,
			UserID:           recipient,
			Kind:             models.TokenKindEarned,
			Delta:            tokens,
			BalanceAfter:     member.TotalTokens(),
			TotalTokensAfter: club.TotalTokens,
			Reason:           models.ReasonMint,
			Reference:        &proposal.ID,
			Timestamp:        now,
		}
		return s.ledgerRepo.Create(ctx, tx, entry)
	})
}

// EvaluateCircuitBreaker checks the trailing 30-day exit rate and, when
// tripped, raises a system PRICE_CHANGE proposal cutting the entry
// price by 20%. An existing open system proposal suppresses new ones.
func (s *ProposalService) EvaluateCircuitBreaker(ctx context.Context, clubID string) (*models.Proposal, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}
	cfg, err := s.govRepo.GetSafeguards(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, nil
	}

	now := time.Now()
	exits, err := s.memberRepo.CountExitedSince(ctx, clubID, now.Add(-30*24*time.Hour))
	if err != nil {
		return nil, err
	}
	active, err := s.memberRepo.CountActive(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if !safeguard.ExitRateExceeded(exits, active, cfg) {
		return nil, nil
	}

	open, err := s.proposalRepo.HasOpenSystemProposal(ctx, clubID, models.ProposalTypePriceChange)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, nil
	}

	newPrice := club.EntryPrice.Mul(decimal.NewFromFloat(0.8))
	if newPrice.LessThan(cfg.MinPriceFloor) {
		newPrice = cfg.MinPriceFloor
	}

	logger.WithFields(map[string]interface{}{
		"club_id":   clubID,
		"exits_30d": exits,
		"active":    active,
		"new_price": newPrice.String(),
	}).Warn("circuit breaker tripped, raising price reduction proposal")

	return s.CreateProposal(ctx, clubID, models.SystemProposer, models.ProposalTypePriceChange,
		"Automatic price reduction (circuit breaker)",
		models.JSONB{"new_price": newPrice.String()}, 0)
}

func (s *ProposalService) GetProposal(ctx context.Context, proposalID string) (*models.Proposal, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, errors.New(errors.ErrProposalNotFound, "proposal not found", nil)
	}
	return proposal, nil
}

// ListVotes returns the individual ballots behind a proposal's tally.
func (s *ProposalService) ListVotes(ctx context.Context, proposalID string) ([]models.Vote, error) {
	proposal, err := s.proposalRepo.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, errors.New(errors.ErrProposalNotFound, "proposal not found", nil)
	}
	return s.voteRepo.GetByProposal(ctx, proposalID)
}

func (s *ProposalService) ListProposals(ctx context.Context, clubID string, status models.ProposalStatus, offset, limit int) ([]models.Proposal, error) {
	return s.proposalRepo.ListByClub(ctx, clubID, status, offset, limit)
}

func (s *ProposalService) CountProposals(ctx context.Context, clubID string, status models.ProposalStatus) (int64, error) {
	return s.proposalRepo.CountByClub(ctx, clubID, status)
}
