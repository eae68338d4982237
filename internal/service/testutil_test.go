package service

import (
	"context"
	"testing"

	"github.com/rsnash92/builda-club-sub000/internal/config"
	"github.com/rsnash92/builda-club-sub000/internal/models"
	"github.com/rsnash92/builda-club-sub000/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every session on the same in-memory
	// database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Club{},
		&models.Member{},
		&models.Proposal{},
		&models.Vote{},
		&models.LedgerEntry{},
		&models.PricePoint{},
		&models.SafeguardConfig{},
		&models.MintingLimits{},
		&models.ApprovedMinter{},
		&models.SnapshotBackup{},
	))
	return db
}

func testGovernanceConfig() config.GovernanceConfig {
	return config.GovernanceConfig{
		VotingWindowDays: 7,
		ExitFeePct:       10,
		SweepCron:        "0 */5 * * * *",
		Safeguards: config.SafeguardDefaults{
			MaxOwnershipPct:            5,
			MaxPriceIncreaseMultiplier: 2.0,
			MaxPriceDecreaseMultiplier: 0.5,
			MinPriceFloor:              10,
			VotingCooldownDays:         30,
			QuorumPct:                  51,
			ThresholdPct:               66,
			CircuitBreakerExitPct:      20,
		},
		Minting: config.MintingDefaults{
			MaxTokensPerMemberPerDay:   100,
			MaxTokensPerMemberPerMonth: 2000,
			MaxWorkTokenRatioOfCapital: 0.20,
			RequiredApprovals:          3,
		},
	}
}

type fixture struct {
	db           *gorm.DB
	clubRepo     *repository.ClubRepository
	memberRepo   *repository.MemberRepository
	proposalRepo *repository.ProposalRepository
	voteRepo     *repository.VoteRepository
	ledgerRepo   *repository.LedgerRepository
	govRepo      *repository.GovernanceRepository
	priceRepo    *repository.PriceRepository
	backupRepo   *repository.BackupRepository

	clubSvc     *ClubService
	ledgerSvc   *LedgerService
	mintingSvc  *MintingService
	proposalSvc *ProposalService
	recoverySvc *RecoveryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	cfg := testGovernanceConfig()

	f := &fixture{
		db:           db,
		clubRepo:     repository.NewClubRepository(db),
		memberRepo:   repository.NewMemberRepository(db),
		proposalRepo: repository.NewProposalRepository(db),
		voteRepo:     repository.NewVoteRepository(db),
		ledgerRepo:   repository.NewLedgerRepository(db),
		govRepo:      repository.NewGovernanceRepository(db),
		priceRepo:    repository.NewPriceRepository(db),
		backupRepo:   repository.NewBackupRepository(db),
	}

	f.clubSvc = NewClubService(f.clubRepo, f.memberRepo, f.proposalRepo, f.govRepo, cfg)
	f.ledgerSvc = NewLedgerService(db, f.clubRepo, f.memberRepo, f.ledgerRepo, f.govRepo, cfg.ExitFeePct)
	f.mintingSvc = NewMintingService(db, f.proposalRepo, f.voteRepo, f.clubRepo, f.memberRepo, f.ledgerRepo, f.govRepo)
	f.proposalSvc = NewProposalService(db, f.ledgerSvc, f.proposalRepo, f.voteRepo, f.clubRepo, f.memberRepo,
		f.ledgerRepo, f.govRepo, f.priceRepo, f.mintingSvc, cfg.VotingWindowDays)
	f.recoverySvc = NewRecoveryService(f.clubRepo, f.memberRepo, f.backupRepo)

	return f
}

func (f *fixture) createClub(t *testing.T, entryPrice string) *models.Club {
	t.Helper()
	price, err := decimal.NewFromString(entryPrice)
	require.NoError(t, err)
	club, err := f.clubSvc.CreateClub(context.Background(), "Test Club", price)
	require.NoError(t, err)
	return club
}

func (f *fixture) addMember(t *testing.T, clubID, userID string) *models.Member {
	t.Helper()
	member, err := f.clubSvc.JoinClub(context.Background(), clubID, userID)
	require.NoError(t, err)
	return member
}

// seedTokens backfills a member's balances directly, keeping the club's
// total supply in step so the ledger invariant holds.
func (f *fixture) seedTokens(t *testing.T, clubID, userID string, purchased, earned int64, costBasis string) {
	t.Helper()
	basis, err := decimal.NewFromString(costBasis)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Member{}).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Updates(map[string]interface{}{
			"purchased_tokens": purchased,
			"earned_tokens":    earned,
			"cost_basis":       basis,
		}).Error)
	require.NoError(t, f.db.Model(&models.Club{}).
		Where("id = ?", clubID).
		UpdateColumn("total_tokens", gorm.Expr("total_tokens + ?", purchased+earned)).Error)
}

func (f *fixture) setTreasury(t *testing.T, clubID, amount string) {
	t.Helper()
	balance, err := decimal.NewFromString(amount)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Club{}).
		Where("id = ?", clubID).
		UpdateColumn("treasury_balance", balance).Error)
}

func (f *fixture) getMember(t *testing.T, clubID, userID string) *models.Member {
	t.Helper()
	member, err := f.memberRepo.GetByUser(context.Background(), clubID, userID)
	require.NoError(t, err)
	require.NotNil(t, member)
	return member
}

func (f *fixture) getClub(t *testing.T, clubID string) *models.Club {
	t.Helper()
	club, err := f.clubRepo.GetByID(context.Background(), clubID)
	require.NoError(t, err)
	require.NotNil(t, club)
	return club
}

func (f *fixture) getProposal(t *testing.T, proposalID string) *models.Proposal {
	t.Helper()
	proposal, err := f.proposalRepo.GetByID(context.Background(), proposalID)
	require.NoError(t, err)
	require.NotNil(t, proposal)
	return proposal
}
