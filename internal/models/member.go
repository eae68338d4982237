package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Member struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ClubID          string          `gorm:"uniqueIndex:uk_club_user;size:36;not null" json:"club_id"`
	UserID          string          `gorm:"uniqueIndex:uk_club_user;size:64;not null" json:"user_id"`
	PurchasedTokens int64           `gorm:"not null;default:0" json:"purchased_tokens"`
	EarnedTokens    int64           `gorm:"not null;default:0" json:"earned_tokens"`
	CostBasis       decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"cost_basis"`
	IsActive        bool            `gorm:"not null;default:true;index" json:"is_active"`
	JoinedAt        time.Time       `gorm:"autoCreateTime" json:"joined_at"`
	LeftAt          *time.Time      `gorm:"index" json:"left_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Member) TableName() string {
	return "members"
}

func (m *Member) TotalTokens() int64 {
	return m.PurchasedTokens + m.EarnedTokens
}
