package models

import "time"

// TherapistProfile links a therapist user to their Stripe connected account
// and carries the capability flags that gate bookings and payouts. The flags
// are only mutated by the account-updated webhook path.
type TherapistProfile struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	StripeAccountID  string    `gorm:"type:varchar(191);not null;default:'';index" json:"stripe_account_id"`
	ChargesEnabled   bool      `gorm:"default:false;index" json:"charges_enabled"`
	PayoutsEnabled   bool      `gorm:"default:false;index" json:"payouts_enabled"`
	DetailsSubmitted bool      `gorm:"default:false" json:"details_submitted"`
	HourlyRateCents  int64     `gorm:"not null;default:0" json:"hourly_rate_cents"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CanAcceptBookings reports whether the connected account is ready to take
// paid sessions.
func (p *TherapistProfile) CanAcceptBookings() bool {
	return p.ChargesEnabled && p.DetailsSubmitted
}
