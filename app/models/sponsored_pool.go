package models

import "time"

// SponsoredPool is a shared credit balance funded by an organizational
// sponsor and drawn down by member bookings. RemainingCents stays within
// [0, AllocatedCents]; the guarded decrement in the subsidy ledger is what
// enforces the lower bound under concurrent draws.
type SponsoredPool struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SponsorName    string    `gorm:"type:varchar(191);not null" json:"sponsor_name"`
	AllocatedCents int64     `gorm:"not null" json:"allocated_cents"`
	RemainingCents int64     `gorm:"not null" json:"remaining_cents"`
	IsActive       bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasFunds reports whether the pool can contribute anything at all.
func (p *SponsoredPool) HasFunds() bool {
	return p.IsActive && p.RemainingCents > 0
}
