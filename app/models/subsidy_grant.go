package models

import "time"

// SubsidyGrant is a per-user allocation of employer subsidy cents,
// independent of any sponsored pool. Expired grants are never eligible.
type SubsidyGrant struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"not null;index" json:"user_id"`
	EmployerID     *uint      `gorm:"index" json:"employer_id,omitempty"`
	OriginalCents  int64      `gorm:"not null" json:"original_cents"`
	RemainingCents int64      `gorm:"not null" json:"remaining_cents"`
	ExpiresAt      *time.Time `gorm:"type:timestamp;default:null;index" json:"expires_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsEligible reports whether the grant can fund a booking at the given time.
func (g *SubsidyGrant) IsEligible(now time.Time) bool {
	if g.RemainingCents <= 0 {
		return false
	}
	if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
		return false
	}
	return true
}
