package service

import (
	"context"
	"testing"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"
	apperrors "github.com/rsnash92/builda-club-sub000/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) expireProposal(t *testing.T, proposalID string) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Proposal{}).
		Where("id = ?", proposalID).
		UpdateColumn("voting_ends_at", time.Now().Add(-time.Hour)).Error)
}

func newPricePayload(price string) models.JSONB {
	return models.JSONB{"new_price": price}
}

func TestCreateProposalValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	f.addMember(t, club.ID, "alice")

	t.Run("price within limits is accepted", func(t *testing.T) {
		proposal, err := f.proposalSvc.CreateProposal(ctx, club.ID, "alice",
			models.ProposalTypePriceChange, "Double the price", newPricePayload("1000"), 0)
		require.NoError(t, err)
		assert.Equal(t, models.ProposalStatusActive, proposal.Status)
		assert.Equal(t, 1, proposal.EligibleVoters)
	})

	t.Run("price over the doubling limit is rejected at creation", func(t *testing.T) {
		_, err := f.proposalSvc.CreateProposal(ctx, club.ID, "alice",
			models.ProposalTypePriceChange, "Too greedy", newPricePayload("1001"), 0)
		assert.True(t, apperrors.Is(err, apperrors.ErrSafeguardRejected))
	})

	t.Run("allocation over the treasury is rejected at creation", func(t *testing.T) {
		_, err := f.proposalSvc.CreateProposal(ctx, club.ID, "alice",
			models.ProposalTypeTreasuryAllocation, "Spend it all twice",
			models.JSONB{"amount": "1"}, 0)
		assert.True(t, apperrors.Is(err, apperrors.ErrSafeguardRejected))
	})

	t.Run("mint requests are routed elsewhere", func(t *testing.T) {
		_, err := f.proposalSvc.CreateProposal(ctx, club.ID, "alice",
			models.ProposalTypeTokenMint, "Mint", models.JSONB{}, 0)
		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidPayload))
	})

	t.Run("non-member cannot propose", func(t *testing.T) {
		_, err := f.proposalSvc.CreateProposal(ctx, club.ID, "stranger",
			models.ProposalTypeFeatureRequest, "Add a sauna", models.JSONB{}, 0)
		assert.True(t, apperrors.Is(err, apperrors.ErrMemberNotFound))
	})
}

func TestCastVoteDeduplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	f.addMember(t, club.ID, "alice")
	f.addMember(t, club.ID, "bob")

	proposal, err := f.proposalSvc.CreateProposal(ctx, club.ID, "alice",
		models.ProposalTypeFeatureRequest, "Weekly demo day", models.JSONB{}, 0)
	require.NoError(t, err)

	updated, err := f.proposalSvc.CastVote(ctx, proposal.ID, "alice", models.VerdictFor)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.VotesFor)

	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "alice", models.VerdictAgainst)
	assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateVote))

	// The failed second vote must not have touched the tally.
	assert.Equal(t, 1, f.getProposal(t, proposal.ID).VotesFor)
	assert.Equal(t, 0, f.getProposal(t, proposal.ID).VotesAgainst)
}

func TestListVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	f.addMember(t, club.ID, "alice")
	f.addMember(t, club.ID, "bob")
	f.addMember(t, club.ID, "carol")

	proposal, err := f.proposalSvc.CreateProposal(ctx, club.ID, "alice",
		models.ProposalTypeFeatureRequest, "Office hours", models.JSONB{}, 0)
	require.NoError(t, err)

	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "alice", models.VerdictFor)
	require.NoError(t, err)
	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "bob", models.VerdictAgainst)
	require.NoError(t, err)

	votes, err := f.proposalSvc.ListVotes(ctx, proposal.ID)
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.Equal(t, "alice", votes[0].VoterID)
	assert.Equal(t, models.VerdictFor, votes[0].Verdict)
	assert.Equal(t, "bob", votes[1].VoterID)

	_, err = f.proposalSvc.ListVotes(ctx, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrProposalNotFound))
}

func TestCastVoteAfterWindowCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	f.addMember(t, club.ID, "alice")
	f.addMember(t, club.ID, "bob")

	proposal, err := f.proposalSvc.CreateProposal(ctx, club.ID, "alice",
		models.ProposalTypeFeatureRequest, "Late vote test", models.JSONB{}, 0)
	require.NoError(t, err)
	f.expireProposal(t, proposal.ID)

	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "bob", models.VerdictFor)
	assert.True(t, apperrors.Is(err, apperrors.ErrVotingClosed))

	// The late vote settled the proposal on its way out.
	assert.Equal(t, models.ProposalStatusFailed, f.getProposal(t, proposal.ID).Status)
}

func TestQuorumUnmetFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	for _, u := range []string{"a", "b", "c", "d", "e"} {
		f.addMember(t, club.ID, u)
	}

	proposal, err := f.proposalSvc.CreateProposal(ctx, club.ID, "a",
		models.ProposalTypeFeatureRequest, "Quiet proposal", models.JSONB{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, proposal.EligibleVoters)

	// 2 of 5 votes is 40% turnout, under the 51% quorum, even though
	// both votes are in favor.
	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "a", models.VerdictFor)
	require.NoError(t, err)
	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "b", models.VerdictFor)
	require.NoError(t, err)

	f.expireProposal(t, proposal.ID)
	resolved, err := f.proposalSvc.ResolveExpired(ctx, club.ID)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, models.ProposalStatusFailed, resolved[0].Status)
}

func TestTieFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	for _, u := range []string{"a", "b", "c", "d"} {
		f.addMember(t, club.ID, u)
	}

	proposal, err := f.proposalSvc.CreateProposal(ctx, club.ID, "a",
		models.ProposalTypeFeatureRequest, "Split opinion", models.JSONB{}, 0)
	require.NoError(t, err)

	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "a", models.VerdictFor)
	require.NoError(t, err)
	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "b", models.VerdictFor)
	require.NoError(t, err)
	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "c", models.VerdictAgainst)
	require.NoError(t, err)

	// The whole electorate has now voted, which resolves early. A 2-2
	// tie fails.
	final, err := f.proposalSvc.CastVote(ctx, proposal.ID, "d", models.VerdictAgainst)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusFailed, final.Status)
	assert.NotNil(t, final.ResolvedAt)
}

func TestEarlyResolutionWhenAllVoted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	for _, u := range []string{"a", "b", "c"} {
		f.addMember(t, club.ID, u)
	}

	proposal, err := f.proposalSvc.CreateProposal(ctx, club.ID, "a",
		models.ProposalTypePriceChange, "Raise to 600", newPricePayload("600"), 0)
	require.NoError(t, err)

	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "a", models.VerdictFor)
	require.NoError(t, err)
	_, err = f.proposalSvc.CastVote(ctx, proposal.ID, "b", models.VerdictFor)
	require.NoError(t, err)
	final, err := f.proposalSvc.CastVote(ctx, proposal.ID, "c", models.VerdictFor)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusPassed, final.Status)
}

func passProposal(t *testing.T, f *fixture, clubID string, ptype models.ProposalType, payload models.JSONB, voters []string) *models.Proposal {
	t.Helper()
	ctx := context.Background()
	proposal, err := f.proposalSvc.CreateProposal(ctx, clubID, voters[0], ptype, "test proposal", payload, 0)
	require.NoError(t, err)
	for _, v := range voters {
		_, err = f.proposalSvc.CastVote(ctx, proposal.ID, v, models.VerdictFor)
		require.NoError(t, err)
	}
	p := f.getProposal(t, proposal.ID)
	require.Equal(t, models.ProposalStatusPassed, p.Status)
	return p
}

func TestExecutePriceChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	voters := []string{"a", "b", "c"}
	for _, u := range voters {
		f.addMember(t, club.ID, u)
	}

	proposal := passProposal(t, f, club.ID, models.ProposalTypePriceChange, newPricePayload("600"), voters)

	executed, err := f.proposalSvc.ExecuteProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusExecuted, executed.Status)
	assert.NotNil(t, executed.ExecutedAt)

	updated := f.getClub(t, club.ID)
	assert.True(t, updated.EntryPrice.Equal(decimal.NewFromInt(600)))
	assert.NotNil(t, updated.LastPriceChangeAt)

	history, err := f.priceRepo.GetHistory(ctx, club.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].OldPrice.Equal(decimal.NewFromInt(500)))
	assert.True(t, history[0].NewPrice.Equal(decimal.NewFromInt(600)))
	require.NotNil(t, history[0].ProposalID)
	assert.Equal(t, proposal.ID, *history[0].ProposalID)

	// Executing an executed proposal is a no-op, the price stays put.
	again, err := f.proposalSvc.ExecuteProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusExecuted, again.Status)
	assert.True(t, f.getClub(t, club.ID).EntryPrice.Equal(decimal.NewFromInt(600)))
}

func TestExecutePriceChangeRecheckLeavesPassed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	voters := []string{"a", "b", "c"}
	for _, u := range voters {
		f.addMember(t, club.ID, u)
	}

	proposal := passProposal(t, f, club.ID, models.ProposalTypePriceChange, newPricePayload("600"), voters)

	// Another price change lands between resolution and execution,
	// putting the club back in cooldown.
	now := time.Now()
	require.NoError(t, f.db.Model(&models.Club{}).
		Where("id = ?", club.ID).
		UpdateColumn("last_price_change_at", now).Error)

	_, err := f.proposalSvc.ExecuteProposal(ctx, proposal.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrSafeguardRejected))

	// The proposal stays passed for manual review; the price is untouched.
	assert.Equal(t, models.ProposalStatusPassed, f.getProposal(t, proposal.ID).Status)
	assert.True(t, f.getClub(t, club.ID).EntryPrice.Equal(decimal.NewFromInt(500)))
}

func TestExecuteTreasuryAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	voters := []string{"a", "b", "c"}
	for _, u := range voters {
		f.addMember(t, club.ID, u)
	}
	f.setTreasury(t, club.ID, "1000")

	proposal := passProposal(t, f, club.ID, models.ProposalTypeTreasuryAllocation,
		models.JSONB{"amount": "400"}, voters)

	executed, err := f.proposalSvc.ExecuteProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusExecuted, executed.Status)
	assert.True(t, f.getClub(t, club.ID).TreasuryBalance.Equal(decimal.NewFromInt(600)))
}

func TestExecuteTreasuryAllocationInsufficientFundsLeavesPassed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	voters := []string{"a", "b", "c"}
	for _, u := range voters {
		f.addMember(t, club.ID, u)
	}
	f.setTreasury(t, club.ID, "1000")

	proposal := passProposal(t, f, club.ID, models.ProposalTypeTreasuryAllocation,
		models.JSONB{"amount": "800"}, voters)

	// The treasury drains while the proposal waits for execution.
	f.setTreasury(t, club.ID, "300")

	// A passed proposal the treasury can no longer cover is a
	// safeguard rejection at execution time, same as a failed
	// price-change re-check.
	_, err := f.proposalSvc.ExecuteProposal(ctx, proposal.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrSafeguardRejected))

	// The failed execution rolled back in full.
	assert.Equal(t, models.ProposalStatusPassed, f.getProposal(t, proposal.ID).Status)
	assert.True(t, f.getClub(t, club.ID).TreasuryBalance.Equal(decimal.NewFromInt(300)))
}

func TestExecuteRequiresPassedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	f.addMember(t, club.ID, "alice")

	proposal, err := f.proposalSvc.CreateProposal(ctx, club.ID, "alice",
		models.ProposalTypeFeatureRequest, "Still voting", models.JSONB{}, 0)
	require.NoError(t, err)

	_, err = f.proposalSvc.ExecuteProposal(ctx, proposal.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrProposalNotPassed))
}

func TestCircuitBreaker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	club := f.createClub(t, "500")
	users := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for _, u := range users {
		f.addMember(t, club.ID, u)
	}

	// One exit out of ten is 10%, under the 20% trigger.
	now := time.Now()
	require.NoError(t, f.db.Model(&models.Member{}).
		Where("club_id = ? AND user_id = ?", club.ID, "a").
		Updates(map[string]interface{}{"is_active": false, "left_at": now}).Error)

	proposal, err := f.proposalSvc.EvaluateCircuitBreaker(ctx, club.ID)
	require.NoError(t, err)
	assert.Nil(t, proposal)

	// A second exit brings the 30-day rate to exactly 20%.
	require.NoError(t, f.db.Model(&models.Member{}).
		Where("club_id = ? AND user_id = ?", club.ID, "b").
		Updates(map[string]interface{}{"is_active": false, "left_at": now}).Error)

	proposal, err = f.proposalSvc.EvaluateCircuitBreaker(ctx, club.ID)
	require.NoError(t, err)
	require.NotNil(t, proposal)
	assert.Equal(t, models.SystemProposer, proposal.ProposerID)
	assert.Equal(t, models.ProposalTypePriceChange, proposal.Type)
	assert.Equal(t, models.ProposalStatusActive, proposal.Status)
	assert.Equal(t, "400", proposal.Payload["new_price"])

	// A second evaluation must not stack another system proposal.
	dup, err := f.proposalSvc.EvaluateCircuitBreaker(ctx, club.ID)
	require.NoError(t, err)
	assert.Nil(t, dup)
}
