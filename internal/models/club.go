package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Club struct {
	ID                string          `gorm:"primaryKey;size:36" json:"id"`
	Name              string          `gorm:"size:100;not null" json:"name"`
	TreasuryBalance   decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"treasury_balance"`
	TotalTokens       int64           `gorm:"not null;default:0" json:"total_tokens"`
	EntryPrice        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	LastPriceChangeAt *time.Time      `json:"last_price_change_at"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Club) TableName() string {
	return "clubs"
}

// TokenValue is treasury divided by total supply, zero for an empty club.
func (c *Club) TokenValue() decimal.Decimal {
	if c.TotalTokens <= 0 {
		return decimal.Zero
	}
	return c.TreasuryBalance.Div(decimal.NewFromInt(c.TotalTokens))
}
