package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// SessionRepository defines the interface for therapy-session database
// operations outside the allocation and settlement cores.
type SessionRepository interface {
	GetByID(id uint) (*models.TherapySession, error)
	GetWithPayment(id uint) (*models.TherapySession, *models.PaymentRecord, error)
	ListByClient(clientID uint, offset, limit int) ([]models.TherapySession, error)
	ListByTherapist(therapistID uint, offset, limit int) ([]models.TherapySession, error)
	ListUpcomingByTherapist(therapistID uint, from time.Time, limit int) ([]models.TherapySession, error)
	CountByStatus(status string) (int64, error)
}

// TherapistRepository defines the interface for therapist-profile database
// operations
type TherapistRepository interface {
	Create(profile *models.TherapistProfile) error
	GetByUserID(userID uint) (*models.TherapistProfile, error)
	Update(profile *models.TherapistProfile) error
	ListAcceptingBookings(offset, limit int) ([]models.TherapistProfile, error)
}

// PoolRepository defines the interface for sponsored-pool and subsidy-grant
// database operations
type PoolRepository interface {
	CreatePool(pool *models.SponsoredPool) error
	GetPoolByID(id uint) (*models.SponsoredPool, error)
	ListActivePools() ([]models.SponsoredPool, error)
	UpdatePool(pool *models.SponsoredPool) error
	CreateGrant(grant *models.SubsidyGrant) error
	GetGrantsByUser(userID uint) ([]models.SubsidyGrant, error)
	RemainingSubsidyForUser(userID uint, now time.Time) (int64, error)
}

// PayoutRepository defines the interface for payout reporting
type PayoutRepository interface {
	GetBySessionID(sessionID uint) (*models.PayoutRecord, error)
	ListByTherapist(therapistID uint, offset, limit int) ([]models.PayoutRecord, error)
	SumPendingByTherapist(therapistID uint) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User      UserRepository
	Session   SessionRepository
	Therapist TherapistRepository
	Pool      PoolRepository
	Payout    PayoutRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:      NewUserRepository(db),
		Session:   NewSessionRepository(db),
		Therapist: NewTherapistRepository(db),
		Pool:      NewPoolRepository(db),
		Payout:    NewPayoutRepository(db),
	}
}
