package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/models"
)

// ErrSlotTaken is returned when another booking already holds the
// (therapist, start time) slot. Expected under concurrent reserves and
// surfaced to the caller as a conflict, not a failure.
var ErrSlotTaken = errors.New("slot is no longer available")

// ErrInvalidSlot is returned for inputs that can never form a bookable slot.
var ErrInvalidSlot = errors.New("invalid slot")

// ErrNotCancellable is returned when the session already reached a terminal
// state and releasing its slot would make no sense.
var ErrNotCancellable = errors.New("session cannot be cancelled")

// ErrNotConfirmable is returned when a session is no longer awaiting
// confirmation.
var ErrNotConfirmable = errors.New("session cannot be confirmed")

// ReserveInput describes one booking request. The gateway ref is the
// payment intent the checkout flow opened for this booking, if any exists
// yet.
type ReserveInput struct {
	TherapistID     uint
	ClientID        uint
	StartTime       time.Time
	EndTime         time.Time
	PriceCents      int64
	SponsoredPoolID *uint
	GatewayRef      string
}

// Allocator reserves exclusive therapy slots. It holds no locks and keeps
// no state: the unique slot_key index arbitrates every race, because the
// datastore's constraint check is atomic relative to the insert.
type Allocator struct {
	db *gorm.DB
}

// NewAllocator creates an allocator on the given GORM handle.
func NewAllocator(db *gorm.DB) *Allocator {
	return &Allocator{db: db}
}

// Reserve creates the session and its pending payment record in one
// transaction. Exactly one of two concurrent reserves for the same slot
// succeeds; the other gets ErrSlotTaken.
func (a *Allocator) Reserve(ctx context.Context, in ReserveInput) (*models.TherapySession, error) {
	if in.TherapistID == 0 || in.ClientID == 0 {
		return nil, fmt.Errorf("%w: therapist and client are required", ErrInvalidSlot)
	}
	if !in.StartTime.Before(in.EndTime) {
		return nil, fmt.Errorf("%w: start time must be before end time", ErrInvalidSlot)
	}
	if in.PriceCents <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidSlot)
	}

	slotKey := models.BuildSlotKey(in.TherapistID, in.StartTime)
	session := &models.TherapySession{
		TherapistID:     in.TherapistID,
		ClientID:        in.ClientID,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		SlotKey:         &slotKey,
		Status:          models.SessionStatusPending,
		PriceCents:      in.PriceCents,
		SponsoredPoolID: in.SponsoredPoolID,
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrSlotTaken
			}
			return err
		}

		payment := &models.PaymentRecord{
			SessionID:  session.ID,
			UserID:     in.ClientID,
			TotalCents: in.PriceCents,
			// Amounts stay unsplit until the subsidy ledger runs.
			OutOfPocketCents: in.PriceCents,
			Status:           models.PaymentStatusPending,
		}
		if ref := strings.TrimSpace(in.GatewayRef); ref != "" {
			payment.GatewayRef = &ref
		}
		return tx.Create(payment).Error
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Confirm moves a freshly reserved session from pending to confirmed once
// its funding split is applied. Only confirmed sessions enter the
// auto-completion sweep; a session stuck pending never gets completed on
// the therapist's behalf.
func (a *Allocator) Confirm(ctx context.Context, sessionID uint) error {
	res := a.db.WithContext(ctx).Model(&models.TherapySession{}).
		Where("id = ? AND status = ?", sessionID, models.SessionStatusPending).
		Update("status", models.SessionStatusConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("session %d is not awaiting confirmation: %w", sessionID, ErrNotConfirmable)
	}
	return nil
}

// Cancel releases a slot without deleting the session row. The slot key is
// cleared so the same (therapist, start time) becomes bookable again while
// the cancelled row stays behind for audit.
func (a *Allocator) Cancel(ctx context.Context, sessionID uint) error {
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.TherapySession
		if err := tx.First(&session, sessionID).Error; err != nil {
			return err
		}
		if session.IsTerminal() {
			return fmt.Errorf("session %d is %s: %w", sessionID, session.Status, ErrNotCancellable)
		}

		return tx.Model(&session).Updates(map[string]interface{}{
			"status":   models.SessionStatusCancelled,
			"slot_key": nil,
		}).Error
	})
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// MySQL drivers without error translation report code 1062 in the text.
	return strings.Contains(err.Error(), "Duplicate entry")
}
