package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/models"
)

// poolRepository implements the PoolRepository interface
type poolRepository struct {
	db *gorm.DB
}

// NewPoolRepository creates a new sponsored-pool repository instance
func NewPoolRepository(db *gorm.DB) PoolRepository {
	return &poolRepository{db: db}
}

// CreatePool creates a new sponsored pool with its full balance available
func (r *poolRepository) CreatePool(pool *models.SponsoredPool) error {
	if pool.RemainingCents == 0 && pool.AllocatedCents > 0 {
		pool.RemainingCents = pool.AllocatedCents
	}
	return r.db.Create(pool).Error
}

// GetPoolByID retrieves a sponsored pool by its ID
func (r *poolRepository) GetPoolByID(id uint) (*models.SponsoredPool, error) {
	var pool models.SponsoredPool
	if err := r.db.First(&pool, id).Error; err != nil {
		return nil, err
	}
	return &pool, nil
}

// ListActivePools retrieves all pools still accepting draws
func (r *poolRepository) ListActivePools() ([]models.SponsoredPool, error) {
	var pools []models.SponsoredPool
	err := r.db.Where("is_active = ?", true).Order("id ASC").Find(&pools).Error
	return pools, err
}

// UpdatePool updates an existing sponsored pool
func (r *poolRepository) UpdatePool(pool *models.SponsoredPool) error {
	return r.db.Save(pool).Error
}

// CreateGrant creates a new subsidy grant
func (r *poolRepository) CreateGrant(grant *models.SubsidyGrant) error {
	if grant.RemainingCents == 0 && grant.OriginalCents > 0 {
		grant.RemainingCents = grant.OriginalCents
	}
	return r.db.Create(grant).Error
}

// GetGrantsByUser retrieves a user's grants, soonest expiry first
func (r *poolRepository) GetGrantsByUser(userID uint) ([]models.SubsidyGrant, error) {
	var grants []models.SubsidyGrant
	err := r.db.Where("user_id = ?", userID).
		Order("expires_at IS NULL, expires_at ASC, id ASC").
		Find(&grants).Error
	return grants, err
}

// RemainingSubsidyForUser sums the user's unexpired grant balances
func (r *poolRepository) RemainingSubsidyForUser(userID uint, now time.Time) (int64, error) {
	var total int64
	err := r.db.Model(&models.SubsidyGrant{}).
		Where("user_id = ? AND remaining_cents > 0 AND (expires_at IS NULL OR expires_at > ?)", userID, now).
		Select("COALESCE(SUM(remaining_cents), 0)").
		Scan(&total).Error
	return total, err
}
