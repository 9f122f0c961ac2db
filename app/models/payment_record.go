package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusCanceled  = "canceled"
	PaymentStatusRefunded  = "refunded"
)

// PaymentRecord is the one-to-one financial record for a session. Amounts
// are integer cents and must always satisfy
// SubsidizedCents + OutOfPocketCents == TotalCents.
type PaymentRecord struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	SessionID        uint       `gorm:"not null;uniqueIndex" json:"session_id"`
	UserID           uint       `gorm:"not null;index" json:"user_id"`
	TotalCents       int64      `gorm:"not null" json:"total_cents"`
	SubsidizedCents  int64      `gorm:"not null;default:0" json:"subsidized_cents"`
	OutOfPocketCents int64      `gorm:"not null;default:0" json:"out_of_pocket_cents"`
	GatewayRef       *string    `gorm:"type:varchar(191);uniqueIndex" json:"gateway_ref,omitempty"`
	Status           string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	FailureReason    string     `gorm:"type:text" json:"failure_reason,omitempty"`
	CapturedAt       *time.Time `gorm:"type:timestamp;default:null" json:"captured_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// paymentStatusRank orders payment statuses so updates never regress a
// record that already reached a terminal state (events arrive duplicated
// and out of order).
var paymentStatusRank = map[string]int{
	PaymentStatusPending:   0,
	PaymentStatusFailed:    1,
	PaymentStatusCanceled:  1,
	PaymentStatusSucceeded: 2,
	PaymentStatusRefunded:  3,
}

// CanTransitionTo reports whether moving the record to the given status is
// monotonic.
func (p *PaymentRecord) CanTransitionTo(status string) bool {
	from, ok := paymentStatusRank[p.Status]
	if !ok {
		return false
	}
	to, ok := paymentStatusRank[status]
	if !ok {
		return false
	}
	return to >= from && p.Status != status
}

// SplitIsConsistent reports whether the subsidy split sums to the total.
func (p *PaymentRecord) SplitIsConsistent() bool {
	return p.SubsidizedCents+p.OutOfPocketCents == p.TotalCents
}
