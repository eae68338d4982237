package models

import (
	"time"
)

// ApprovedMinter grants a member the right to open token-mint requests.
type ApprovedMinter struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ClubID    string    `gorm:"uniqueIndex:uk_club_minter;size:36;not null" json:"club_id"`
	UserID    string    `gorm:"uniqueIndex:uk_club_minter;size:64;not null" json:"user_id"`
	GrantedBy string    `gorm:"size:64" json:"granted_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ApprovedMinter) TableName() string {
	return "approved_minters"
}
