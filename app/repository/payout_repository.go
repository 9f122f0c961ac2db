package repository

import (
	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/models"
)

// payoutRepository implements the PayoutRepository interface
type payoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository creates a new payout repository instance
func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &payoutRepository{db: db}
}

// GetBySessionID retrieves the payout row for a session
func (r *payoutRepository) GetBySessionID(sessionID uint) (*models.PayoutRecord, error) {
	var payout models.PayoutRecord
	if err := r.db.Where("session_id = ?", sessionID).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListByTherapist retrieves a therapist's payouts, newest first
func (r *payoutRepository) ListByTherapist(therapistID uint, offset, limit int) ([]models.PayoutRecord, error) {
	var payouts []models.PayoutRecord
	err := r.db.Where("therapist_id = ?", therapistID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

// SumPendingByTherapist sums the therapist's not-yet-transferred payout cents
func (r *payoutRepository) SumPendingByTherapist(therapistID uint) (int64, error) {
	var total int64
	err := r.db.Model(&models.PayoutRecord{}).
		Where("therapist_id = ? AND status = ?", therapistID, models.PayoutStatusPending).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}
