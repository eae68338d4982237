package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SafeguardConfig holds the per-club protective bounds applied to
// pricing and ownership mutations. Admin-settable; defaults come from
// the service configuration at club creation.
type SafeguardConfig struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ClubID string `gorm:"uniqueIndex;size:36;not null" json:"club_id"`
	// MaxOwnershipPct caps any single member's share of total supply.
	MaxOwnershipPct float64 `gorm:"not null;default:5" json:"max_ownership_pct"`
	// Price may at most double, or halve, relative to the quarter-start price.
	MaxPriceIncreaseMultiplier float64         `gorm:"not null;default:2.0" json:"max_price_increase_multiplier"`
	MaxPriceDecreaseMultiplier float64         `gorm:"not null;default:0.5" json:"max_price_decrease_multiplier"`
	MinPriceFloor              decimal.Decimal `gorm:"type:decimal(20,8);not null;default:10" json:"min_price_floor"`
	VotingCooldownDays         int             `gorm:"not null;default:30" json:"voting_cooldown_days"`
	QuorumPct                  float64         `gorm:"not null;default:51" json:"quorum_pct"`
	ThresholdPct               float64         `gorm:"not null;default:66" json:"threshold_pct"`
	// CircuitBreakerExitPct triggers an automatic price-reduction
	// proposal when this share of members exits within 30 days.
	CircuitBreakerExitPct float64   `gorm:"not null;default:20" json:"circuit_breaker_exit_pct"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SafeguardConfig) TableName() string {
	return "safeguard_configs"
}

// MintingLimits bounds earn-token grants per club.
type MintingLimits struct {
	ID                         uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ClubID                     string `gorm:"uniqueIndex;size:36;not null" json:"club_id"`
	MaxTokensPerMemberPerDay   int64  `gorm:"not null;default:100" json:"max_tokens_per_member_per_day"`
	MaxTokensPerMemberPerMonth int64  `gorm:"not null;default:2000" json:"max_tokens_per_member_per_month"`
	// Earned tokens across the club stay under this fraction of
	// purchased tokens.
	MaxWorkTokenRatioOfCapital float64   `gorm:"not null;default:0.20" json:"max_work_token_ratio_of_capital"`
	RequiredApprovals          int       `gorm:"not null;default:3" json:"required_approvals"`
	UpdatedAt                  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MintingLimits) TableName() string {
	return "minting_limits"
}
