package models

import (
	"fmt"
	"time"
)

const (
	SessionStatusPending   = "pending"
	SessionStatusConfirmed = "confirmed"
	SessionStatusCompleted = "completed"
	SessionStatusCancelled = "cancelled"
)

// TherapySession is one booked time slot between a therapist and a client.
// SlotKey encodes (therapist_id, start_time) and carries a unique index; it
// is the sole arbiter against double-booking, because concurrent reserves
// race on the insert and the loser gets a duplicate-key error. Cancelling a
// session clears SlotKey so the slot becomes bookable again while the row is
// retained for audit (MySQL permits multiple NULLs in a unique index).
type TherapySession struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	TherapistID         uint       `gorm:"not null;index:idx_therapy_sessions_therapist_start,priority:1" json:"therapist_id"`
	ClientID            uint       `gorm:"not null;index" json:"client_id"`
	StartTime           time.Time  `gorm:"not null;index:idx_therapy_sessions_therapist_start,priority:2" json:"start_time"`
	EndTime             time.Time  `gorm:"not null;index" json:"end_time"`
	SlotKey             *string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	Status              string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	PriceCents          int64      `gorm:"not null" json:"price_cents"`
	SponsoredPoolID     *uint      `gorm:"index" json:"sponsored_pool_id,omitempty"`
	SubsidyAppliedCents int64      `gorm:"not null;default:0" json:"subsidy_applied_cents"`
	AutoCompleted       bool       `gorm:"default:false" json:"auto_completed"`
	CompletedAt         *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BuildSlotKey returns the canonical exclusivity key for a therapist slot.
func BuildSlotKey(therapistID uint, startTime time.Time) string {
	return fmt.Sprintf("%d:%d", therapistID, startTime.UTC().Unix())
}

// IsTerminal reports whether the session status permits no further
// settlement transitions.
func (s *TherapySession) IsTerminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusCancelled
}

// HasEnded reports whether the scheduled end time has passed.
func (s *TherapySession) HasEnded(now time.Time) bool {
	return !s.EndTime.After(now)
}
