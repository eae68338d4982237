package models

import (
	"time"
)

type VoteVerdict string

const (
	VerdictFor     VoteVerdict = "for"
	VerdictAgainst VoteVerdict = "against"
	// Mint requests use an approval model rather than for/against.
	VerdictApprove VoteVerdict = "approve"
	VerdictReject  VoteVerdict = "reject"
)

type Vote struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ProposalID string      `gorm:"uniqueIndex:uk_proposal_voter;size:36;not null" json:"proposal_id"`
	VoterID    string      `gorm:"uniqueIndex:uk_proposal_voter;size:64;not null" json:"voter_id"`
	Verdict    VoteVerdict `gorm:"size:16;not null" json:"verdict"`
	CreatedAt  time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (Vote) TableName() string {
	return "votes"
}
