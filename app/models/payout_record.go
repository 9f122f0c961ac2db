package models

import "time"

const (
	PayoutStatusPending   = "pending"
	PayoutStatusCompleted = "completed"
	PayoutStatusFailed    = "failed"
	PayoutStatusRefunded  = "refunded"
)

// PayoutRecord is the amount owed to the therapist for one completed, paid
// session. The unique session index makes "exactly one payout per session"
// a database guarantee rather than an application promise.
type PayoutRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   uint      `gorm:"not null;uniqueIndex" json:"session_id"`
	TherapistID uint      `gorm:"not null;index" json:"therapist_id"`
	AmountCents int64     `gorm:"not null" json:"amount_cents"`
	TransferRef string    `gorm:"type:varchar(191);not null;default:'';index" json:"transfer_ref"`
	Status      string    `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PayoutAmountCents computes the therapist share of a session total at the
// given rate in percent. Integer math only; the platform keeps the
// remainder from flooring.
func PayoutAmountCents(totalCents int64, ratePercent int64) int64 {
	if totalCents <= 0 || ratePercent <= 0 {
		return 0
	}
	return totalCents * ratePercent / 100
}
