package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint records an executed entry-price change. The rate-of-change
// safeguard reads this history to find the price at the start of the
// current quarter.
type PricePoint struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ClubID      string          `gorm:"size:36;not null;index:idx_club_effective" json:"club_id"`
	OldPrice    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"old_price"`
	NewPrice    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"new_price"`
	ProposalID  *string         `gorm:"size:36" json:"proposal_id"`
	EffectiveAt time.Time       `gorm:"not null;index:idx_club_effective" json:"effective_at"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (PricePoint) TableName() string {
	return "price_history"
}
