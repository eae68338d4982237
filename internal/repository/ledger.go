package repository

import (
	"context"
	"time"

	"github.com/rsnash92/builda-club-sub000/internal/models"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *models.LedgerEntry) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *LedgerRepository) GetByUser(ctx context.Context, clubID, userID string, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	query := r.db.WithContext(ctx).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Order("timestamp DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&entries).Error
	return entries, err
}

func (r *LedgerRepository) GetRecent(ctx context.Context, clubID string, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if limit <= 0 {
		limit = 10
	}
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *LedgerRepository) ExistsByReference(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("reference = ?", reference).
		Count(&count).Error
	return count > 0, err
}

// SumEarnedSince totals a member's earned-token credits from the cutoff
// on; the minting caps read it for the day and month windows.
func (r *LedgerRepository) SumEarnedSince(ctx context.Context, clubID, userID string, cutoff time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(delta),0)").
		Where("club_id = ? AND user_id = ? AND kind = ? AND delta > 0 AND timestamp >= ?",
			clubID, userID, models.TokenKindEarned, cutoff).
		Scan(&total).Error
	return total, err
}

func (r *LedgerRepository) CountByClub(ctx context.Context, clubID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("club_id = ?", clubID).
		Count(&count).Error
	return count, err
}
