package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/models"
)

// sessionRepository implements the SessionRepository interface
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository instance
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// GetByID retrieves a therapy session by its ID
func (r *sessionRepository) GetByID(id uint) (*models.TherapySession, error) {
	var session models.TherapySession
	if err := r.db.First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// GetWithPayment retrieves a session together with its payment record
func (r *sessionRepository) GetWithPayment(id uint) (*models.TherapySession, *models.PaymentRecord, error) {
	var session models.TherapySession
	if err := r.db.First(&session, id).Error; err != nil {
		return nil, nil, err
	}
	var payment models.PaymentRecord
	if err := r.db.Where("session_id = ?", id).First(&payment).Error; err != nil {
		return nil, nil, err
	}
	return &session, &payment, nil
}

// ListByClient retrieves a client's sessions, newest first
func (r *sessionRepository) ListByClient(clientID uint, offset, limit int) ([]models.TherapySession, error) {
	var sessions []models.TherapySession
	err := r.db.Where("client_id = ?", clientID).
		Order("start_time DESC").
		Offset(offset).Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// ListByTherapist retrieves a therapist's sessions, newest first
func (r *sessionRepository) ListByTherapist(therapistID uint, offset, limit int) ([]models.TherapySession, error) {
	var sessions []models.TherapySession
	err := r.db.Where("therapist_id = ?", therapistID).
		Order("start_time DESC").
		Offset(offset).Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// ListUpcomingByTherapist retrieves a therapist's not-yet-started,
// non-cancelled sessions in chronological order
func (r *sessionRepository) ListUpcomingByTherapist(therapistID uint, from time.Time, limit int) ([]models.TherapySession, error) {
	var sessions []models.TherapySession
	err := r.db.Where("therapist_id = ? AND start_time >= ? AND status NOT IN ?",
		therapistID, from, []string{models.SessionStatusCancelled, models.SessionStatusCompleted}).
		Order("start_time ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

// CountByStatus returns the number of sessions in the given status
func (r *sessionRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.TherapySession{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
