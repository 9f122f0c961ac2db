package repository

import (
	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/models"
)

// therapistRepository implements the TherapistRepository interface
type therapistRepository struct {
	db *gorm.DB
}

// NewTherapistRepository creates a new therapist repository instance
func NewTherapistRepository(db *gorm.DB) TherapistRepository {
	return &therapistRepository{db: db}
}

// Create creates a new therapist profile
func (r *therapistRepository) Create(profile *models.TherapistProfile) error {
	return r.db.Create(profile).Error
}

// GetByUserID retrieves a therapist profile by the owning user ID
func (r *therapistRepository) GetByUserID(userID uint) (*models.TherapistProfile, error) {
	var profile models.TherapistProfile
	if err := r.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update updates an existing therapist profile
func (r *therapistRepository) Update(profile *models.TherapistProfile) error {
	return r.db.Save(profile).Error
}

// ListAcceptingBookings retrieves profiles whose connected account can take
// paid sessions
func (r *therapistRepository) ListAcceptingBookings(offset, limit int) ([]models.TherapistProfile, error) {
	var profiles []models.TherapistProfile
	err := r.db.Where("charges_enabled = ? AND details_submitted = ?", true, true).
		Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&profiles).Error
	return profiles, err
}
