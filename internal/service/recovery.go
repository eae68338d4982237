package service

import (
	"context"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"
	"github.com/rsnash92/builda-club-sub000/internal/repository"
	"github.com/rsnash92/builda-club-sub000/pkg/logger"
)

// RecoveryService snapshots club ledgers to JSON backups so a corrupted
// ledger can be audited against a known-good state.
type RecoveryService struct {
	clubRepo   *repository.ClubRepository
	memberRepo *repository.MemberRepository
	backupRepo *repository.BackupRepository
}

func NewRecoveryService(
	clubRepo *repository.ClubRepository,
	memberRepo *repository.MemberRepository,
	backupRepo *repository.BackupRepository,
) *RecoveryService {
	return &RecoveryService{
		clubRepo:   clubRepo,
		memberRepo: memberRepo,
		backupRepo: backupRepo,
	}
}

func (s *RecoveryService) BackupLedger(ctx context.Context, clubID string) error {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return err
	}
	if club == nil {
		return nil
	}
	members, err := s.memberRepo.GetAllByClub(ctx, clubID)
	if err != nil {
		return err
	}

	balances := make(map[string]interface{}, len(members))
	for _, m := range members {
		balances[m.UserID] = map[string]interface{}{
			"purchased_tokens": m.PurchasedTokens,
			"earned_tokens":    m.EarnedTokens,
			"cost_basis":       m.CostBasis.String(),
			"is_active":        m.IsActive,
		}
	}

	backup := &models.SnapshotBackup{
		ClubID:     clubID,
		BackupType: models.BackupTypeLedgerSnapshot,
		BackupData: models.JSONB{
			"treasury_balance": club.TreasuryBalance.String(),
			"total_tokens":     club.TotalTokens,
			"entry_price":      club.EntryPrice.String(),
			"balances":         balances,
		},
	}

	if err := s.backupRepo.Create(ctx, backup); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"club_id": clubID,
		"members": len(members),
	}).Debug("ledger snapshot stored")

	return nil
}

func (s *RecoveryService) ListBackups(ctx context.Context, clubID string, limit int) ([]models.SnapshotBackup, error) {
	return s.backupRepo.ListByClub(ctx, clubID, limit)
}

func (s *RecoveryService) PruneBackups(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return s.backupRepo.DeleteOlderThan(ctx, cutoff)
}
