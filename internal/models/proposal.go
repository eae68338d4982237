package models

import (
	"time"
)

type ProposalType string

const (
	ProposalTypePriceChange        ProposalType = "price_change"
	ProposalTypeTreasuryAllocation ProposalType = "treasury_allocation"
	ProposalTypeFeatureRequest     ProposalType = "feature_request"
	ProposalTypeRuleChange         ProposalType = "rule_change"
	ProposalTypeTokenMint          ProposalType = "token_mint"
)

func (t ProposalType) Valid() bool {
	switch t {
	case ProposalTypePriceChange, ProposalTypeTreasuryAllocation,
		ProposalTypeFeatureRequest, ProposalTypeRuleChange, ProposalTypeTokenMint:
		return true
	}
	return false
}

type ProposalStatus string

const (
	ProposalStatusActive   ProposalStatus = "active"
	ProposalStatusPassed   ProposalStatus = "passed"
	ProposalStatusFailed   ProposalStatus = "failed"
	ProposalStatusExecuted ProposalStatus = "executed"
	ProposalStatusRejected ProposalStatus = "rejected"
)

// SystemProposer marks proposals raised by the engine itself, e.g. the
// circuit-breaker price reduction.
const SystemProposer = "system"

type Proposal struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	ClubID       string         `gorm:"size:36;not null;index:idx_club_status" json:"club_id"`
	Type         ProposalType   `gorm:"size:32;not null" json:"type"`
	ProposerID   string         `gorm:"size:64;not null" json:"proposer_id"`
	Title        string         `gorm:"size:200" json:"title"`
	Payload      JSONB          `gorm:"type:json" json:"payload"`
	Status       ProposalStatus `gorm:"size:16;not null;index:idx_club_status" json:"status"`
	VotesFor     int            `gorm:"not null;default:0" json:"votes_for"`
	VotesAgainst int            `gorm:"not null;default:0" json:"votes_against"`
	// EligibleVoters is the active member count snapshotted at creation;
	// quorum is evaluated against it, not against live membership.
	EligibleVoters    int        `gorm:"not null" json:"eligible_voters"`
	QuorumPct         float64    `gorm:"not null" json:"quorum_pct"`
	ThresholdPct      float64    `gorm:"not null" json:"threshold_pct"`
	RequiredApprovals int        `gorm:"not null;default:0" json:"required_approvals"`
	VotingEndsAt      time.Time  `gorm:"not null;index" json:"voting_ends_at"`
	ResolvedAt        *time.Time `json:"resolved_at"`
	ExecutedAt        *time.Time `json:"executed_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Proposal) TableName() string {
	return "proposals"
}

func (p *Proposal) TotalVotes() int {
	return p.VotesFor + p.VotesAgainst
}
