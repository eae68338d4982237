package service

import (
	"context"
	"testing"

	"github.com/rsnash92/builda-club-sub000/internal/models"
	apperrors "github.com/rsnash92/builda-club-sub000/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateClubProvisionsGovernanceRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	club, err := f.clubSvc.CreateClub(ctx, "builda", decimal.NewFromInt(500))
	require.NoError(t, err)
	require.NotEmpty(t, club.ID)

	cfg, err := f.govRepo.GetSafeguards(ctx, club.ID)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, float64(5), cfg.MaxOwnershipPct)
	assert.True(t, cfg.MinPriceFloor.Equal(decimal.NewFromInt(10)))

	limits, err := f.govRepo.GetMintingLimits(ctx, club.ID)
	require.NoError(t, err)
	require.NotNil(t, limits)
	assert.Equal(t, int64(100), limits.MaxTokensPerMemberPerDay)
	assert.Equal(t, 3, limits.RequiredApprovals)
}

func TestCreateClubValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.clubSvc.CreateClub(ctx, "", decimal.NewFromInt(1))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidPayload))

	_, err = f.clubSvc.CreateClub(ctx, "freebie", decimal.Zero)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))
}

func TestJoinClubIsIdempotentAndReactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "1")

	first := f.addMember(t, club.ID, "alice")
	second := f.addMember(t, club.ID, "alice")
	assert.Equal(t, first.ID, second.ID)

	// Exit, then rejoin: same row, reactivated with a clean cost basis.
	f.seedTokens(t, club.ID, "alice", 100, 0, "100")
	_, err := f.ledgerSvc.ExitMember(ctx, club.ID, "alice")
	require.NoError(t, err)

	rejoined := f.addMember(t, club.ID, "alice")
	assert.Equal(t, first.ID, rejoined.ID)
	assert.True(t, rejoined.IsActive)
	assert.Nil(t, rejoined.LeftAt)
	assert.True(t, rejoined.CostBasis.IsZero())
	assert.Equal(t, int64(0), rejoined.TotalTokens())
}

func TestGetOwnershipReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "1")
	f.addMember(t, club.ID, "anchor")
	f.addMember(t, club.ID, "alice")
	f.seedTokens(t, club.ID, "anchor", 49390, 0, "49390")
	f.seedTokens(t, club.ID, "alice", 500, 110, "500")
	f.setTreasury(t, club.ID, "75000")

	report, err := f.clubSvc.GetOwnershipReport(ctx, club.ID, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 1.22, report.OwnershipPct, 0.0001)
	assert.True(t, report.ShareValue.Equal(decimal.NewFromInt(915)))
	assert.True(t, report.ExitValue.Equal(decimal.NewFromFloat(823.5)))

	_, err = f.clubSvc.GetOwnershipReport(ctx, club.ID, "nobody")
	assert.True(t, apperrors.Is(err, apperrors.ErrMemberNotFound))
}

func TestGetStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "2")
	f.addMember(t, club.ID, "alice")
	f.addMember(t, club.ID, "bob")
	f.seedTokens(t, club.ID, "alice", 100, 0, "200")
	f.setTreasury(t, club.ID, "300")

	_, err := f.proposalSvc.CreateProposal(ctx, club.ID, "alice",
		models.ProposalTypeFeatureRequest, "Stats fodder", models.JSONB{}, 0)
	require.NoError(t, err)

	stats, err := f.clubSvc.GetStats(ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.ActiveMembers)
	assert.Equal(t, int64(100), stats.TotalTokens)
	assert.True(t, stats.TokenValue.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, int64(1), stats.OpenProposals)
}

func TestListClubs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := f.clubSvc.CreateClub(ctx, name, decimal.NewFromInt(1))
		require.NoError(t, err)
	}

	clubs, total, err := f.clubSvc.ListClubs(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, clubs, 2)
	assert.Equal(t, int64(3), total)

	rest, _, err := f.clubSvc.ListClubs(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestDeleteClub(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("club with members is kept", func(t *testing.T) {
		club := f.createClub(t, "1")
		f.addMember(t, club.ID, "alice")

		err := f.clubSvc.DeleteClub(ctx, club.ID)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidPayload))
		_, err = f.clubSvc.GetClub(ctx, club.ID)
		assert.NoError(t, err)
	})

	t.Run("empty club is removed", func(t *testing.T) {
		club := f.createClub(t, "1")

		require.NoError(t, f.clubSvc.DeleteClub(ctx, club.ID))
		_, err := f.clubSvc.GetClub(ctx, club.ID)
		assert.True(t, apperrors.Is(err, apperrors.ErrClubNotFound))
	})

	t.Run("unknown club", func(t *testing.T) {
		err := f.clubSvc.DeleteClub(ctx, "missing")
		assert.True(t, apperrors.Is(err, apperrors.ErrClubNotFound))
	})
}

func TestUpdateSafeguards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")

	current, err := f.clubSvc.GetSafeguards(ctx, club.ID)
	require.NoError(t, err)

	updated := *current
	updated.MaxOwnershipPct = 10
	updated.QuorumPct = 40
	saved, err := f.clubSvc.UpdateSafeguards(ctx, club.ID, updated)
	require.NoError(t, err)
	assert.Equal(t, float64(10), saved.MaxOwnershipPct)

	reread, err := f.clubSvc.GetSafeguards(ctx, club.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(10), reread.MaxOwnershipPct)
	assert.Equal(t, float64(40), reread.QuorumPct)

	t.Run("out-of-range bounds are rejected", func(t *testing.T) {
		bad := *reread
		bad.MaxOwnershipPct = 0
		_, err := f.clubSvc.UpdateSafeguards(ctx, club.ID, bad)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidPayload))

		bad = *reread
		bad.MaxPriceDecreaseMultiplier = 1.5
		_, err = f.clubSvc.UpdateSafeguards(ctx, club.ID, bad)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidPayload))
	})
}

func TestRemoveApprovedMinter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "1")
	f.addMember(t, club.ID, "worker")
	f.addMember(t, club.ID, "backer")
	f.seedTokens(t, club.ID, "backer", 1000, 0, "1000")
	require.NoError(t, f.clubSvc.AddApprovedMinter(ctx, club.ID, "worker", "backer"))

	_, err := f.mintingSvc.RequestMint(ctx, club.ID, "worker", "built the onboarding", 10)
	require.NoError(t, err)

	require.NoError(t, f.clubSvc.RemoveApprovedMinter(ctx, club.ID, "worker"))

	_, err = f.mintingSvc.RequestMint(ctx, club.ID, "worker", "one more thing", 10)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotApprovedMinter))
}

func TestBackupAndPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "1")
	f.addMember(t, club.ID, "alice")
	f.seedTokens(t, club.ID, "alice", 100, 10, "100")
	f.setTreasury(t, club.ID, "500")

	require.NoError(t, f.recoverySvc.BackupLedger(ctx, club.ID))

	backups, err := f.recoverySvc.ListBackups(ctx, club.ID, 10)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, models.BackupTypeLedgerSnapshot, backups[0].BackupType)
	assert.Equal(t, "500", backups[0].BackupData["treasury_balance"])

	balances, ok := backups[0].BackupData["balances"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, balances, "alice")

	// A fresh backup survives a prune with any sane retention.
	pruned, err := f.recoverySvc.PruneBackups(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pruned)
}
