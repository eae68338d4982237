package service

import (
	"context"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/config"
	"github.com/rsnash92/builda-club-sub000/internal/models"
	"github.com/rsnash92/builda-club-sub000/internal/ownership"
	"github.com/rsnash92/builda-club-sub000/internal/repository"
	"github.com/rsnash92/builda-club-sub000/pkg/errors"
	"github.com/rsnash92/builda-club-sub000/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClubService owns club and membership lifecycle plus read-side
// reporting. Balance mutations stay with the ledger service.
type ClubService struct {
	clubRepo     *repository.ClubRepository
	memberRepo   *repository.MemberRepository
	proposalRepo *repository.ProposalRepository
	govRepo      *repository.GovernanceRepository
	defaults     config.GovernanceConfig
}

func NewClubService(
	clubRepo *repository.ClubRepository,
	memberRepo *repository.MemberRepository,
	proposalRepo *repository.ProposalRepository,
	govRepo *repository.GovernanceRepository,
	defaults config.GovernanceConfig,
) *ClubService {
	return &ClubService{
		clubRepo:     clubRepo,
		memberRepo:   memberRepo,
		proposalRepo: proposalRepo,
		govRepo:      govRepo,
		defaults:     defaults,
	}
}

// CreateClub provisions a club with its own copy of the safeguard and
// minting defaults; admins can tune each club independently later.
func (s *ClubService) CreateClub(ctx context.Context, name string, entryPrice decimal.Decimal) (*models.Club, error) {
	if name == "" {
		return nil, errors.New(errors.ErrInvalidPayload, "club name is required", nil)
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New(errors.ErrInvalidAmount, "entry price must be positive", nil)
	}

	club := &models.Club{
		ID:         uuid.NewString(),
		Name:       name,
		EntryPrice: entryPrice,
	}
	if err := s.clubRepo.Create(ctx, club); err != nil {
		return nil, err
	}

	sg := s.defaults.Safeguards
	safeguards := &models.SafeguardConfig{
		ClubID:                     club.ID,
		MaxOwnershipPct:            sg.MaxOwnershipPct,
		MaxPriceIncreaseMultiplier: sg.MaxPriceIncreaseMultiplier,
		MaxPriceDecreaseMultiplier: sg.MaxPriceDecreaseMultiplier,
		MinPriceFloor:              decimal.NewFromFloat(sg.MinPriceFloor),
		VotingCooldownDays:         sg.VotingCooldownDays,
		QuorumPct:                  sg.QuorumPct,
		ThresholdPct:               sg.ThresholdPct,
		CircuitBreakerExitPct:      sg.CircuitBreakerExitPct,
	}
	if err := s.govRepo.CreateSafeguards(ctx, safeguards); err != nil {
		return nil, err
	}

	mt := s.defaults.Minting
	limits := &models.MintingLimits{
		ClubID:                     club.ID,
		MaxTokensPerMemberPerDay:   mt.MaxTokensPerMemberPerDay,
		MaxTokensPerMemberPerMonth: mt.MaxTokensPerMemberPerMonth,
		MaxWorkTokenRatioOfCapital: mt.MaxWorkTokenRatioOfCapital,
		RequiredApprovals:          mt.RequiredApprovals,
	}
	if err := s.govRepo.CreateMintingLimits(ctx, limits); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"club_id":     club.ID,
		"name":        name,
		"entry_price": entryPrice.String(),
	}).Info("club created")

	return club, nil
}

func (s *ClubService) ListClubs(ctx context.Context, offset, limit int) ([]models.Club, int64, error) {
	clubs, err := s.clubRepo.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.clubRepo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return clubs, total, nil
}

// DeleteClub removes a club that never accrued membership records.
// Clubs with members (active or exited) stay, so their ledger history
// survives.
func (s *ClubService) DeleteClub(ctx context.Context, clubID string) error {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return err
	}
	if club == nil {
		return errors.New(errors.ErrClubNotFound, "club not found", nil)
	}
	members, err := s.memberRepo.GetAllByClub(ctx, clubID)
	if err != nil {
		return err
	}
	if len(members) > 0 {
		return errors.New(errors.ErrInvalidPayload, "club still has members", nil)
	}
	if err := s.clubRepo.Delete(ctx, clubID); err != nil {
		return errors.New(errors.ErrInvalidPayload, "club still has members", err)
	}
	return nil
}

func (s *ClubService) GetClub(ctx context.Context, clubID string) (*models.Club, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}
	return club, nil
}

// JoinClub registers a user as a zero-balance member. Rejoining after
// an exit reactivates the old row so the exit stays on record.
func (s *ClubService) JoinClub(ctx context.Context, clubID, userID string) (*models.Member, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}

	existing, err := s.memberRepo.GetByUser(ctx, clubID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.IsActive {
			return existing, nil
		}
		existing.IsActive = true
		existing.LeftAt = nil
		existing.CostBasis = decimal.Zero
		if err := s.memberRepo.Save(ctx, nil, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	member := &models.Member{
		ClubID:   clubID,
		UserID:   userID,
		IsActive: true,
		JoinedAt: time.Now(),
	}
	if err := s.memberRepo.Create(ctx, member); err != nil {
		return nil, err
	}
	return member, nil
}

// GetOwnershipReport derives the member's position from current ledger
// state.
func (s *ClubService) GetOwnershipReport(ctx context.Context, clubID, userID string) (*ownership.Report, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}
	member, err := s.memberRepo.GetByUser(ctx, clubID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, errors.New(errors.ErrMemberNotFound, "member not found", nil)
	}

	report := ownership.BuildReport(member, club, s.defaults.ExitFeePct)
	return &report, nil
}

type ClubStats struct {
	ClubID          string          `json:"club_id"`
	Name            string          `json:"name"`
	ActiveMembers   int64           `json:"active_members"`
	TotalTokens     int64           `json:"total_tokens"`
	TreasuryBalance decimal.Decimal `json:"treasury_balance"`
	TokenValue      decimal.Decimal `json:"token_value"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	OpenProposals   int64           `json:"open_proposals"`
}

func (s *ClubService) GetStats(ctx context.Context, clubID string) (*ClubStats, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}

	active, err := s.memberRepo.CountActive(ctx, clubID)
	if err != nil {
		return nil, err
	}
	open, err := s.proposalRepo.CountByClub(ctx, clubID, models.ProposalStatusActive)
	if err != nil {
		return nil, err
	}

	return &ClubStats{
		ClubID:          club.ID,
		Name:            club.Name,
		ActiveMembers:   active,
		TotalTokens:     club.TotalTokens,
		TreasuryBalance: club.TreasuryBalance,
		TokenValue:      club.TokenValue(),
		EntryPrice:      club.EntryPrice,
		OpenProposals:   open,
	}, nil
}

func (s *ClubService) ListMembers(ctx context.Context, clubID string, offset, limit int) ([]models.Member, error) {
	return s.memberRepo.GetByClubPaginated(ctx, clubID, offset, limit)
}

func (s *ClubService) GetSafeguards(ctx context.Context, clubID string) (*models.SafeguardConfig, error) {
	cfg, err := s.govRepo.GetSafeguards(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club has no safeguard config", nil)
	}
	return cfg, nil
}

// UpdateSafeguards replaces a club's admin-settable protective bounds.
func (s *ClubService) UpdateSafeguards(ctx context.Context, clubID string, updated models.SafeguardConfig) (*models.SafeguardConfig, error) {
	current, err := s.govRepo.GetSafeguards(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club has no safeguard config", nil)
	}

	if updated.MaxOwnershipPct <= 0 || updated.MaxOwnershipPct > 100 {
		return nil, errors.New(errors.ErrInvalidPayload, "max ownership pct must be in (0, 100]", nil)
	}
	if updated.MaxPriceIncreaseMultiplier < 1 {
		return nil, errors.New(errors.ErrInvalidPayload, "max price increase multiplier must be at least 1", nil)
	}
	if updated.MaxPriceDecreaseMultiplier <= 0 || updated.MaxPriceDecreaseMultiplier > 1 {
		return nil, errors.New(errors.ErrInvalidPayload, "max price decrease multiplier must be in (0, 1]", nil)
	}
	if updated.QuorumPct <= 0 || updated.QuorumPct > 100 ||
		updated.ThresholdPct <= 0 || updated.ThresholdPct > 100 {
		return nil, errors.New(errors.ErrInvalidPayload, "quorum and threshold pct must be in (0, 100]", nil)
	}

	updated.ID = current.ID
	updated.ClubID = clubID
	if err := s.govRepo.UpdateSafeguards(ctx, &updated); err != nil {
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"club_id":           clubID,
		"max_ownership_pct": updated.MaxOwnershipPct,
		"quorum_pct":        updated.QuorumPct,
		"threshold_pct":     updated.ThresholdPct,
	}).Info("safeguard config updated")

	return &updated, nil
}

// AddApprovedMinter grants mint-request rights to a member.
func (s *ClubService) AddApprovedMinter(ctx context.Context, clubID, userID, grantedBy string) error {
	member, err := s.memberRepo.GetByUser(ctx, clubID, userID)
	if err != nil {
		return err
	}
	if member == nil || !member.IsActive {
		return errors.New(errors.ErrMemberNotFound, "user is not an active member", nil)
	}
	return s.govRepo.AddApprovedMinter(ctx, &models.ApprovedMinter{
		ClubID:    clubID,
		UserID:    userID,
		GrantedBy: grantedBy,
	})
}

// RemoveApprovedMinter revokes mint-request rights. Open requests keep
// running; the gate applies at request time.
func (s *ClubService) RemoveApprovedMinter(ctx context.Context, clubID, userID string) error {
	return s.govRepo.RemoveApprovedMinter(ctx, clubID, userID)
}
