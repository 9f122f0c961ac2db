package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/renavest/renavest-next-sub002/app/models"
)

var testDBSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:repository_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.SponsoredPool{},
		&models.SubsidyGrant{},
		&models.PayoutRecord{},
	))
	return db
}

func TestUserRepositoryRoundTrip(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	user := &models.User{
		Name:   "Alex Rivera",
		Email:  "alex@example.com",
		Role:   models.ROLE_CLIENT,
		Status: models.STATUS_ACTIVE,
	}
	require.NoError(t, repo.Create(user))
	require.NotZero(t, user.ID)

	byID, err := repo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alex@example.com", byID.Email)

	byEmail, err := repo.GetByEmail("alex@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.GetByEmail("nobody@example.com")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestUserRepositoryRejectsDuplicateEmail(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	require.NoError(t, repo.Create(&models.User{
		Name: "First Person", Email: "dup@example.com", Role: models.ROLE_CLIENT, Status: models.STATUS_ACTIVE,
	}))
	err := repo.Create(&models.User{
		Name: "Second Person", Email: "dup@example.com", Role: models.ROLE_CLIENT, Status: models.STATUS_ACTIVE,
	})
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))
}

func TestUserRepositoryListAndCount(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(&models.User{
			Name:   fmt.Sprintf("User Number%d", i),
			Email:  fmt.Sprintf("user%d@example.com", i),
			Role:   models.ROLE_CLIENT,
			Status: models.STATUS_ACTIVE,
		}))
	}

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	page, err := repo.List(0, 3)
	require.NoError(t, err)
	assert.Len(t, page, 3)

	rest, err := repo.List(3, 3)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}

func TestPoolRepositoryDefaultsRemainingToAllocated(t *testing.T) {
	repo := NewPoolRepository(newTestDB(t))

	pool := &models.SponsoredPool{SponsorName: "Acme Corp", AllocatedCents: 500000, IsActive: true}
	require.NoError(t, repo.CreatePool(pool))
	assert.Equal(t, int64(500000), pool.RemainingCents)

	got, err := repo.GetPoolByID(pool.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), got.RemainingCents)
	assert.True(t, got.HasFunds())
}

func TestPoolRepositoryListActiveSkipsDeactivated(t *testing.T) {
	db := newTestDB(t)
	repo := NewPoolRepository(db)

	active := &models.SponsoredPool{SponsorName: "Active Sponsor", AllocatedCents: 1000, IsActive: true}
	require.NoError(t, repo.CreatePool(active))

	retired := &models.SponsoredPool{SponsorName: "Retired Sponsor", AllocatedCents: 1000, IsActive: true}
	require.NoError(t, repo.CreatePool(retired))
	retired.IsActive = false
	require.NoError(t, repo.UpdatePool(retired))

	pools, err := repo.ListActivePools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, active.ID, pools[0].ID)
}

func TestPoolRepositoryGrantsOrderedBySoonestExpiry(t *testing.T) {
	repo := NewPoolRepository(newTestDB(t))
	now := time.Now()

	late := now.Add(72 * time.Hour)
	soon := now.Add(24 * time.Hour)

	open := &models.SubsidyGrant{UserID: 42, OriginalCents: 1000}
	require.NoError(t, repo.CreateGrant(open))
	assert.Equal(t, int64(1000), open.RemainingCents)

	require.NoError(t, repo.CreateGrant(&models.SubsidyGrant{UserID: 42, OriginalCents: 2000, ExpiresAt: &late}))
	require.NoError(t, repo.CreateGrant(&models.SubsidyGrant{UserID: 42, OriginalCents: 3000, ExpiresAt: &soon}))

	grants, err := repo.GetGrantsByUser(42)
	require.NoError(t, err)
	require.Len(t, grants, 3)
	assert.Equal(t, int64(3000), grants[0].OriginalCents)
	assert.Equal(t, int64(2000), grants[1].OriginalCents)
	assert.Nil(t, grants[2].ExpiresAt)
}

func TestPoolRepositoryRemainingSubsidyExcludesExpired(t *testing.T) {
	db := newTestDB(t)
	repo := NewPoolRepository(db)
	now := time.Now()

	expired := now.Add(-time.Hour)
	valid := now.Add(time.Hour)

	require.NoError(t, repo.CreateGrant(&models.SubsidyGrant{UserID: 9, OriginalCents: 5000, ExpiresAt: &expired}))
	require.NoError(t, repo.CreateGrant(&models.SubsidyGrant{UserID: 9, OriginalCents: 2500, ExpiresAt: &valid}))
	require.NoError(t, repo.CreateGrant(&models.SubsidyGrant{UserID: 9, OriginalCents: 1500}))

	// Drained grants contribute nothing either.
	drained := &models.SubsidyGrant{UserID: 9, OriginalCents: 800}
	require.NoError(t, repo.CreateGrant(drained))
	require.NoError(t, db.Model(drained).Update("remaining_cents", 0).Error)

	total, err := repo.RemainingSubsidyForUser(9, now)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), total)

	other, err := repo.RemainingSubsidyForUser(10, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), other)
}

func TestPayoutRepositoryListsAndSumsByTherapist(t *testing.T) {
	db := newTestDB(t)
	repo := NewPayoutRepository(db)

	rows := []models.PayoutRecord{
		{SessionID: 1, TherapistID: 7, AmountCents: 9000, Status: models.PayoutStatusPending},
		{SessionID: 2, TherapistID: 7, AmountCents: 4500, Status: models.PayoutStatusCompleted, TransferRef: "tr_1"},
		{SessionID: 3, TherapistID: 7, AmountCents: 1800, Status: models.PayoutStatusPending},
		{SessionID: 4, TherapistID: 8, AmountCents: 7000, Status: models.PayoutStatusPending},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	payouts, err := repo.ListByTherapist(7, 0, 10)
	require.NoError(t, err)
	assert.Len(t, payouts, 3)

	bySession, err := repo.GetBySessionID(2)
	require.NoError(t, err)
	assert.Equal(t, "tr_1", bySession.TransferRef)

	pending, err := repo.SumPendingByTherapist(7)
	require.NoError(t, err)
	assert.Equal(t, int64(10800), pending)
}
