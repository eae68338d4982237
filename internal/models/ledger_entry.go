package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TokenKind string

const (
	TokenKindPurchased TokenKind = "purchased"
	TokenKindEarned    TokenKind = "earned"
)

type LedgerReason string

const (
	ReasonPurchase   LedgerReason = "purchase"
	ReasonMint       LedgerReason = "mint"
	ReasonExit       LedgerReason = "exit"
	ReasonAdjustment LedgerReason = "adjustment"
)

// LedgerEntry is the append-only record of every committed token
// mutation. BalanceAfter and TotalTokensAfter capture the post-commit
// state so point-in-time balances can be reconstructed.
type LedgerEntry struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ClubID           string          `gorm:"size:36;not null;index:idx_club_user_time" json:"club_id"`
	UserID           string          `gorm:"size:64;not null;index:idx_club_user_time" json:"user_id"`
	Kind             TokenKind       `gorm:"size:16;not null" json:"kind"`
	Delta            int64           `gorm:"not null" json:"delta"`
	BalanceAfter     int64           `gorm:"not null" json:"balance_after"`
	TotalTokensAfter int64           `gorm:"not null" json:"total_tokens_after"`
	TreasuryDelta    decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"treasury_delta"`
	Reason           LedgerReason    `gorm:"size:16;not null" json:"reason"`
	// Reference carries an external idempotency key (proposal ID for
	// mint executions); the unique index rejects replays.
	Reference *string   `gorm:"size:64;uniqueIndex:uk_ledger_ref" json:"reference"`
	Timestamp time.Time `gorm:"not null;index:idx_club_user_time" json:"timestamp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
