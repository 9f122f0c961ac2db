package repository

import (
	"sync"

	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/internal/pkg/database"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetUserRepository returns the user repository instance
func (f *Factory) GetUserRepository() UserRepository {
	return f.GetRepositories().User
}

// GetSessionRepository returns the session repository instance
func (f *Factory) GetSessionRepository() SessionRepository {
	return f.GetRepositories().Session
}

// GetTherapistRepository returns the therapist repository instance
func (f *Factory) GetTherapistRepository() TherapistRepository {
	return f.GetRepositories().Therapist
}

// GetPoolRepository returns the sponsored-pool repository instance
func (f *Factory) GetPoolRepository() PoolRepository {
	return f.GetRepositories().Pool
}

// GetPayoutRepository returns the payout repository instance
func (f *Factory) GetPayoutRepository() PayoutRepository {
	return f.GetRepositories().Payout
}

var (
	globalFactory *Factory
	factoryMu     sync.Mutex
)

// GetGlobalFactory returns the global repository factory backed by the
// application database, creating it on first use.
func GetGlobalFactory() *Factory {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if globalFactory == nil {
		globalFactory = NewFactory(database.GetDB())
	}
	return globalFactory
}
