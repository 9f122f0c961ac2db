package settlement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/renavest/renavest-next-sub002/app/models"
)

// Repository provides the DB operations used by the settlement processor.
type Repository interface {
	CreateWebhookEventIfNotExists(event *models.GatewayWebhookEvent) (bool, *models.GatewayWebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	GetSession(id uint) (*models.TherapySession, error)
	GetPaymentBySession(sessionID uint) (*models.PaymentRecord, error)
	GetTherapistProfile(userID uint) (*models.TherapistProfile, error)
	FinalizeCapture(in FinalizeInput) error
	MarkPaymentCaptured(sessionID uint, gatewayRef string, capturedAt time.Time) error
	MarkPaymentOutcome(sessionID uint, status, reason string) error
	UpdateTherapistCapabilities(accountID string, chargesEnabled, payoutsEnabled, detailsSubmitted bool) error
	ListAutoCompletable(cutoff time.Time, limit int) ([]models.TherapySession, error)
	AttachTransferRef(sessionID uint, transferRef string) error
}

// FinalizeInput is everything the atomic completion transaction writes:
// payment success, session completion and the payout row commit together or
// not at all.
type FinalizeInput struct {
	SessionID     uint
	TherapistID   uint
	GatewayRef    string
	PayoutCents   int64
	AutoCompleted bool
	CapturedAt    time.Time
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a settlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.GatewayWebhookEvent) (bool, *models.GatewayWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.GatewayWebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.GatewayWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) GetSession(id uint) (*models.TherapySession, error) {
	var session models.TherapySession
	if err := r.db.First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *gormRepository) GetPaymentBySession(sessionID uint) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	if err := r.db.Where("session_id = ?", sessionID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormRepository) GetTherapistProfile(userID uint) (*models.TherapistProfile, error) {
	var profile models.TherapistProfile
	if err := r.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// FinalizeCapture performs the settlement transaction: mark the payment
// succeeded, complete the session and insert the payout row. A crash
// between any two of the writes must never leave a succeeded payment with
// no payout, so all three share one transaction.
func (r *gormRepository) FinalizeCapture(in FinalizeInput) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var session models.TherapySession
		if err := tx.First(&session, in.SessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		// A cancelled session released its slot; flipping it back to
		// completed could coexist with a rebooking of the same slot. The
		// caller decides what happens to the captured money.
		if session.Status == models.SessionStatusCancelled {
			return ErrSessionCancelled
		}

		var payment models.PaymentRecord
		if err := tx.Where("session_id = ?", in.SessionID).First(&payment).Error; err != nil {
			return fmt.Errorf("load payment for session %d: %w", in.SessionID, err)
		}

		if payment.Status == models.PaymentStatusSucceeded {
			return ErrAlreadySettled
		}
		if !payment.CanTransitionTo(models.PaymentStatusSucceeded) {
			return fmt.Errorf("payment for session %d cannot move from %s to succeeded", in.SessionID, payment.Status)
		}

		capturedAt := in.CapturedAt
		if capturedAt.IsZero() {
			capturedAt = time.Now()
		}
		paymentUpdates := map[string]interface{}{
			"status":      models.PaymentStatusSucceeded,
			"captured_at": &capturedAt,
		}
		if ref := strings.TrimSpace(in.GatewayRef); ref != "" && payment.GatewayRef == nil {
			paymentUpdates["gateway_ref"] = ref
		}
		if err := tx.Model(&payment).Updates(paymentUpdates).Error; err != nil {
			return err
		}

		sessionUpdates := map[string]interface{}{
			"status":         models.SessionStatusCompleted,
			"completed_at":   &capturedAt,
			"auto_completed": in.AutoCompleted,
		}
		if err := tx.Model(&models.TherapySession{}).Where("id = ?", in.SessionID).
			Updates(sessionUpdates).Error; err != nil {
			return err
		}

		if in.PayoutCents <= 0 {
			return nil
		}
		payout := &models.PayoutRecord{
			SessionID:   in.SessionID,
			TherapistID: in.TherapistID,
			AmountCents: in.PayoutCents,
			Status:      models.PayoutStatusPending,
		}
		if err := tx.Create(payout).Error; err != nil {
			// The unique session index makes a second payout impossible;
			// hitting it means another writer finalized first.
			if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "Duplicate entry") {
				return ErrAlreadySettled
			}
			return err
		}
		return nil
	})
}

// MarkPaymentCaptured records a gateway capture on the payment row alone,
// without completing the session or writing a payout. Used when captured
// funds arrive for a session that settlement must not touch (cancelled),
// so the money is on the books for the refund follow-up.
func (r *gormRepository) MarkPaymentCaptured(sessionID uint, gatewayRef string, capturedAt time.Time) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var payment models.PaymentRecord
		if err := tx.Where("session_id = ?", sessionID).First(&payment).Error; err != nil {
			return fmt.Errorf("load payment for session %d: %w", sessionID, err)
		}
		if payment.Status == models.PaymentStatusSucceeded {
			return ErrAlreadySettled
		}
		if !payment.CanTransitionTo(models.PaymentStatusSucceeded) {
			return fmt.Errorf("payment for session %d cannot move from %s to succeeded", sessionID, payment.Status)
		}

		updates := map[string]interface{}{
			"status":      models.PaymentStatusSucceeded,
			"captured_at": &capturedAt,
		}
		if ref := strings.TrimSpace(gatewayRef); ref != "" && payment.GatewayRef == nil {
			updates["gateway_ref"] = ref
		}
		return tx.Model(&payment).Updates(updates).Error
	})
}

// MarkPaymentOutcome records a failed or canceled payment. The session is
// left untouched: a failed payment does not un-book a slot. Status updates
// are monotonic, so a late failure event cannot regress a succeeded record.
func (r *gormRepository) MarkPaymentOutcome(sessionID uint, status, reason string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var payment models.PaymentRecord
		if err := tx.Where("session_id = ?", sessionID).First(&payment).Error; err != nil {
			return err
		}
		if !payment.CanTransitionTo(status) {
			return ErrAlreadySettled
		}
		return tx.Model(&payment).Updates(map[string]interface{}{
			"status":         status,
			"failure_reason": reason,
		}).Error
	})
}

func (r *gormRepository) UpdateTherapistCapabilities(accountID string, chargesEnabled, payoutsEnabled, detailsSubmitted bool) error {
	res := r.db.Model(&models.TherapistProfile{}).
		Where("stripe_account_id = ?", accountID).
		Updates(map[string]interface{}{
			"charges_enabled":   chargesEnabled,
			"payouts_enabled":   payoutsEnabled,
			"details_submitted": detailsSubmitted,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("no therapist profile for gateway account %s", accountID)
	}
	return nil
}

func (r *gormRepository) ListAutoCompletable(cutoff time.Time, limit int) ([]models.TherapySession, error) {
	if limit <= 0 {
		limit = 100
	}
	var sessions []models.TherapySession
	err := r.db.Where("status = ? AND end_time <= ?", models.SessionStatusConfirmed, cutoff).
		Order("end_time ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (r *gormRepository) AttachTransferRef(sessionID uint, transferRef string) error {
	return r.db.Model(&models.PayoutRecord{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"transfer_ref": transferRef,
			"status":       models.PayoutStatusCompleted,
		}).Error
}
