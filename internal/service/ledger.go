package service

import (
	"context"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"
	"github.com/rsnash92/builda-club-sub000/internal/ownership"
	"github.com/rsnash92/builda-club-sub000/internal/repository"
	"github.com/rsnash92/builda-club-sub000/internal/safeguard"
	"github.com/rsnash92/builda-club-sub000/pkg/errors"
	"github.com/rsnash92/builda-club-sub000/pkg/logger"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerService is the single writer for token balances and treasuries.
// Every mutation runs inside a database transaction under the club's
// lock, so no reader observes total supply and member balances out of
// step.
type LedgerService struct {
	db         *gorm.DB
	clubRepo   *repository.ClubRepository
	memberRepo *repository.MemberRepository
	ledgerRepo *repository.LedgerRepository
	govRepo    *repository.GovernanceRepository
	exitFeePct float64
	locks      *clubLocks
}

func NewLedgerService(
	db *gorm.DB,
	clubRepo *repository.ClubRepository,
	memberRepo *repository.MemberRepository,
	ledgerRepo *repository.LedgerRepository,
	govRepo *repository.GovernanceRepository,
	exitFeePct float64,
) *LedgerService {
	return &LedgerService{
		db:         db,
		clubRepo:   clubRepo,
		memberRepo: memberRepo,
		ledgerRepo: ledgerRepo,
		govRepo:    govRepo,
		exitFeePct: exitFeePct,
		locks:      newClubLocks(),
	}
}

// Snapshot is a consistent point-in-time view of one club's ledger.
type Snapshot struct {
	Club    models.Club     `json:"club"`
	Members []models.Member `json:"members"`
	TakenAt time.Time       `json:"taken_at"`
}

type PurchaseResult struct {
	TokensGranted int64           `json:"tokens_granted"`
	Clamped       bool            `json:"clamped"`
	Spent         decimal.Decimal `json:"spent"`
}

type ExitResult struct {
	TokensBurned int64            `json:"tokens_burned"`
	Payout       decimal.Decimal  `json:"payout"`
	Report       ownership.Report `json:"report"`
}

func (s *LedgerService) loadClubMember(ctx context.Context, clubID, userID string) (*models.Club, *models.Member, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, nil, err
	}
	if club == nil {
		return nil, nil, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}
	member, err := s.memberRepo.GetByUser(ctx, clubID, userID)
	if err != nil {
		return nil, nil, err
	}
	if member == nil {
		return nil, nil, errors.New(errors.ErrMemberNotFound, "member not found", nil)
	}
	return club, member, nil
}

// Credit grants tokens to a member and grows total supply by the same
// amount. A reference makes the credit idempotent via the ledger's
// unique index.
func (s *LedgerService) Credit(ctx context.Context, clubID, userID string, amount int64, kind models.TokenKind, reason models.LedgerReason, reference *string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, errors.New(errors.ErrInvalidAmount, "credit amount must be positive", nil)
	}

	lock := s.locks.get(clubID)
	lock.Lock()
	defer lock.Unlock()

	if reference != nil {
		applied, err := s.ledgerRepo.ExistsByReference(ctx, *reference)
		if err != nil {
			return nil, err
		}
		if applied {
			return nil, errors.New(errors.ErrLedgerUpdate, "reference already applied", nil)
		}
	}

	club, member, err := s.loadClubMember(ctx, clubID, userID)
	if err != nil {
		return nil, err
	}

	switch kind {
	case models.TokenKindPurchased:
		member.PurchasedTokens += amount
	case models.TokenKindEarned:
		member.EarnedTokens += amount
	default:
		return nil, errors.New(errors.ErrInvalidAmount, "unknown token kind", nil)
	}

	entry := &models.LedgerEntry{
		ClubID:           clubID,
		UserID:           userID,
		Kind:             kind,
		Delta:            amount,
		BalanceAfter:     member.TotalTokens(),
		TotalTokensAfter: club.TotalTokens + amount,
		Reason:           reason,
		Reference:        reference,
		Timestamp:        time.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.memberRepo.Save(ctx, tx, member); err != nil {
			return err
		}
		if err := tx.Model(&models.Club{}).
			Where("id = ?", clubID).
			UpdateColumn("total_tokens", gorm.Expr("total_tokens + ?", amount)).Error; err != nil {
			return err
		}
		return s.ledgerRepo.Create(ctx, tx, entry)
	})
	if err != nil {
		return nil, errors.New(errors.ErrLedgerUpdate, "failed to commit credit", err)
	}

	logger.WithFields(map[string]interface{}{
		"club_id": clubID,
		"user_id": userID,
		"kind":    kind,
		"amount":  amount,
		"reason":  reason,
	}).Info("tokens credited")

	return entry, nil
}

// Debit removes tokens from a member and shrinks total supply.
func (s *LedgerService) Debit(ctx context.Context, clubID, userID string, amount int64, kind models.TokenKind, reason models.LedgerReason, reference *string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, errors.New(errors.ErrInvalidAmount, "debit amount must be positive", nil)
	}

	lock := s.locks.get(clubID)
	lock.Lock()
	defer lock.Unlock()

	club, member, err := s.loadClubMember(ctx, clubID, userID)
	if err != nil {
		return nil, err
	}

	switch kind {
	case models.TokenKindPurchased:
		if member.PurchasedTokens < amount {
			return nil, errors.New(errors.ErrInsufficientBalance, "insufficient purchased token balance", nil)
		}
		member.PurchasedTokens -= amount
	case models.TokenKindEarned:
		if member.EarnedTokens < amount {
			return nil, errors.New(errors.ErrInsufficientBalance, "insufficient earned token balance", nil)
		}
		member.EarnedTokens -= amount
	default:
		return nil, errors.New(errors.ErrInvalidAmount, "unknown token kind", nil)
	}

	entry := &models.LedgerEntry{
		ClubID:           clubID,
		UserID:           userID,
		Kind:             kind,
		Delta:            -amount,
		BalanceAfter:     member.TotalTokens(),
		TotalTokensAfter: club.TotalTokens - amount,
		Reason:           reason,
		Reference:        reference,
		Timestamp:        time.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.memberRepo.Save(ctx, tx, member); err != nil {
			return err
		}
		if err := tx.Model(&models.Club{}).
			Where("id = ?", clubID).
			UpdateColumn("total_tokens", gorm.Expr("total_tokens - ?", amount)).Error; err != nil {
			return err
		}
		return s.ledgerRepo.Create(ctx, tx, entry)
	})
	if err != nil {
		return nil, errors.New(errors.ErrLedgerUpdate, "failed to commit debit", err)
	}

	return entry, nil
}

// AdjustTreasury applies a signed USD delta to the club treasury.
func (s *LedgerService) AdjustTreasury(ctx context.Context, clubID string, delta decimal.Decimal) error {
	lock := s.locks.get(clubID)
	lock.Lock()
	defer lock.Unlock()

	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return err
	}
	if club == nil {
		return errors.New(errors.ErrClubNotFound, "club not found", nil)
	}

	ok, err := s.clubRepo.AdjustTreasury(ctx, nil, clubID, delta)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(errors.ErrInsufficientTreasury, "treasury balance would go negative", nil)
	}
	return nil
}

// Snapshot reads club and member state under the club lock, so the
// totals and per-member balances always agree.
func (s *LedgerService) Snapshot(ctx context.Context, clubID string) (*Snapshot, error) {
	lock := s.locks.get(clubID)
	lock.Lock()
	defer lock.Unlock()

	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if club == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}
	members, err := s.memberRepo.GetAllByClub(ctx, clubID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Club: *club, Members: members, TakenAt: time.Now()}, nil
}

// PurchaseTokens converts a validated USD payment into purchased tokens
// at the current entry price. When the grant would push the member over
// the whale cap it is clamped to the allowed amount and the short fill
// is reported back, not treated as an error.
func (s *LedgerService) PurchaseTokens(ctx context.Context, clubID, userID string, usdAmount decimal.Decimal) (*PurchaseResult, error) {
	if usdAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New(errors.ErrInvalidAmount, "purchase amount must be positive", nil)
	}

	lock := s.locks.get(clubID)
	lock.Lock()
	defer lock.Unlock()

	club, member, err := s.loadClubMember(ctx, clubID, userID)
	if err != nil {
		return nil, err
	}
	if !member.IsActive {
		return nil, errors.New(errors.ErrMemberNotFound, "member has exited the club", nil)
	}
	cfg, err := s.govRepo.GetSafeguards(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.New(errors.ErrClubNotFound, "club has no safeguard config", nil)
	}

	price := club.EntryPrice
	if price.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New(errors.ErrInvalidAmount, "club entry price not set", nil)
	}

	requested := usdAmount.Div(price).IntPart()
	if requested <= 0 {
		return nil, errors.New(errors.ErrInvalidAmount, "amount buys less than one token", nil)
	}

	granted, clamped := safeguard.ClampPurchase(club.TotalTokens, member.TotalTokens(), requested, cfg)
	if granted == 0 {
		// Fully clamped: member is already at the ownership cap.
		return &PurchaseResult{TokensGranted: 0, Clamped: true, Spent: decimal.Zero}, nil
	}

	spent := price.Mul(decimal.NewFromInt(granted))
	member.PurchasedTokens += granted
	member.CostBasis = member.CostBasis.Add(spent)

	entry := &models.LedgerEntry{
		ClubID:           clubID,
		UserID:           userID,
		Kind:             models.TokenKindPurchased,
		Delta:            granted,
		BalanceAfter:     member.TotalTokens(),
		TotalTokensAfter: club.TotalTokens + granted,
		TreasuryDelta:    spent,
		Reason:           models.ReasonPurchase,
		Timestamp:        time.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.memberRepo.Save(ctx, tx, member); err != nil {
			return err
		}
		if err := tx.Model(&models.Club{}).
			Where("id = ?", clubID).
			UpdateColumn("total_tokens", gorm.Expr("total_tokens + ?", granted)).Error; err != nil {
			return err
		}
		if ok, err := s.clubRepo.AdjustTreasury(ctx, tx, clubID, spent); err != nil {
			return err
		} else if !ok {
			return errors.New(errors.ErrClubNotFound, "club disappeared during purchase", nil)
		}
		return s.ledgerRepo.Create(ctx, tx, entry)
	})
	if err != nil {
		return nil, errors.New(errors.ErrLedgerUpdate, "failed to commit purchase", err)
	}

	logger.WithFields(map[string]interface{}{
		"club_id":        clubID,
		"user_id":        userID,
		"tokens_granted": granted,
		"clamped":        clamped,
		"spent":          spent.String(),
	}).Info("token purchase committed")

	return &PurchaseResult{TokensGranted: granted, Clamped: clamped, Spent: spent}, nil
}

// ExitMember liquidates a member's full position back to the treasury:
// tokens are burned, the exit value (share value minus fee) is paid
// out, and the member is marked inactive for the circuit-breaker
// window. The retained fee stays in the treasury.
func (s *LedgerService) ExitMember(ctx context.Context, clubID, userID string) (*ExitResult, error) {
	lock := s.locks.get(clubID)
	lock.Lock()
	defer lock.Unlock()

	club, member, err := s.loadClubMember(ctx, clubID, userID)
	if err != nil {
		return nil, err
	}
	if !member.IsActive {
		return nil, errors.New(errors.ErrMemberNotFound, "member already exited", nil)
	}

	report := ownership.BuildReport(member, club, s.exitFeePct)
	burned := member.TotalTokens()
	payout := report.ExitValue

	now := time.Now()
	purchased := member.PurchasedTokens
	earned := member.EarnedTokens
	member.PurchasedTokens = 0
	member.EarnedTokens = 0
	member.IsActive = false
	member.LeftAt = &now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.memberRepo.Save(ctx, tx, member); err != nil {
			return err
		}
		if burned > 0 {
			if err := tx.Model(&models.Club{}).
				Where("id = ?", clubID).
				UpdateColumn("total_tokens", gorm.Expr("total_tokens - ?", burned)).Error; err != nil {
				return err
			}
		}
		if payout.GreaterThan(decimal.Zero) {
			if ok, err := s.clubRepo.AdjustTreasury(ctx, tx, clubID, payout.Neg()); err != nil {
				return err
			} else if !ok {
				return errors.New(errors.ErrInsufficientTreasury, "treasury cannot cover exit payout", nil)
			}
		}
		remaining := club.TotalTokens - burned
		if purchased > 0 {
			entry := &models.LedgerEntry{
				ClubID: clubID, UserID: userID,
				Kind: models.TokenKindPurchased, Delta: -purchased,
				BalanceAfter: earned, TotalTokensAfter: remaining + earned,
				TreasuryDelta: payout.Neg(), Reason: models.ReasonExit,
				Timestamp: now,
			}
			if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
				return err
			}
		}
		if earned > 0 {
			entry := &models.LedgerEntry{
				ClubID: clubID, UserID: userID,
				Kind: models.TokenKindEarned, Delta: -earned,
				BalanceAfter: 0, TotalTokensAfter: remaining,
				Reason: models.ReasonExit, Timestamp: now,
			}
			if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if appCode := errors.Code(err); appCode != "" {
			return nil, err
		}
		return nil, errors.New(errors.ErrLedgerUpdate, "failed to commit exit", err)
	}

	logger.WithFields(map[string]interface{}{
		"club_id":       clubID,
		"user_id":       userID,
		"tokens_burned": burned,
		"payout":        payout.String(),
	}).Info("member exited")

	return &ExitResult{TokensBurned: burned, Payout: payout, Report: report}, nil
}

// CheckInvariant verifies total supply equals the sum of member
// balances; the test suite and stats endpoint lean on it.
func (s *LedgerService) CheckInvariant(ctx context.Context, clubID string) (bool, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return false, err
	}
	if club == nil {
		return false, errors.New(errors.ErrClubNotFound, "club not found", nil)
	}
	purchased, earned, err := s.memberRepo.SumTokens(ctx, clubID)
	if err != nil {
		return false, err
	}
	return club.TotalTokens == purchased+earned, nil
}
