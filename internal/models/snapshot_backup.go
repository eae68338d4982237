package models

import (
	"time"
)

type BackupType string

const (
	BackupTypeLedgerSnapshot BackupType = "ledger_snapshot"
)

// SnapshotBackup stores a point-in-time JSON dump of a club's balances
// and treasury for recovery and audit.
type SnapshotBackup struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ClubID     string     `gorm:"size:36;not null;index:idx_club_type_time" json:"club_id"`
	BackupType BackupType `gorm:"size:32;not null;index:idx_club_type_time" json:"backup_type"`
	BackupData JSONB      `gorm:"type:json;not null" json:"backup_data"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index:idx_club_type_time" json:"created_at"`
}

func (SnapshotBackup) TableName() string {
	return "snapshot_backups"
}
