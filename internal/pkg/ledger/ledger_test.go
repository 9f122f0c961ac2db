package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/renavest/renavest-next-sub002/app/models"
)

func TestPlanSplitPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		pool       int64
		grants     []int64
		wantPool   int64
		wantGrants []int64
		wantOOP    int64
	}{
		{
			// The documented precedence example: pool then grant then
			// out-of-pocket, both funding sources fully drained.
			name:       "pool then grant then out of pocket",
			total:      10000,
			pool:       6000,
			grants:     []int64{3000},
			wantPool:   6000,
			wantGrants: []int64{3000},
			wantOOP:    1000,
		},
		{
			name:       "pool covers everything",
			total:      5000,
			pool:       20000,
			grants:     []int64{3000},
			wantPool:   5000,
			wantGrants: []int64{0},
			wantOOP:    0,
		},
		{
			name:       "no funding at all",
			total:      5000,
			pool:       0,
			grants:     nil,
			wantPool:   0,
			wantGrants: []int64{},
			wantOOP:    5000,
		},
		{
			name:       "grants consumed in order",
			total:      10000,
			pool:       0,
			grants:     []int64{4000, 9000},
			wantPool:   0,
			wantGrants: []int64{4000, 6000},
			wantOOP:    0,
		},
		{
			name:       "exact coverage leaves zero out of pocket",
			total:      9000,
			pool:       6000,
			grants:     []int64{3000},
			wantPool:   6000,
			wantGrants: []int64{3000},
			wantOOP:    0,
		},
		{
			name:       "zero total draws nothing",
			total:      0,
			pool:       6000,
			grants:     []int64{3000},
			wantPool:   0,
			wantGrants: []int64{0},
			wantOOP:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, grants, oop := planSplit(tt.total, tt.pool, tt.grants)
			assert.Equal(t, tt.wantPool, pool)
			assert.Equal(t, tt.wantOOP, oop)
			require.Len(t, grants, len(tt.grants))
			for i := range grants {
				assert.Equal(t, tt.wantGrants[i], grants[i], "grant draw %d", i)
			}

			var subsidized int64 = pool
			for _, g := range grants {
				subsidized += g
			}
			if tt.total > 0 {
				assert.Equal(t, tt.total, subsidized+oop, "split must sum to total")
			}
		})
	}
}

var testDBSeq int

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:ledger_%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.TherapySession{},
		&models.PaymentRecord{},
		&models.SponsoredPool{},
		&models.SubsidyGrant{},
	))
	return db
}

func seedSession(t *testing.T, db *gorm.DB, sessionID uint, userID uint, totalCents int64, poolID *uint) {
	t.Helper()
	slotKey := fmt.Sprintf("seed-%d", sessionID)
	require.NoError(t, db.Create(&models.TherapySession{
		ID:              sessionID,
		TherapistID:     1,
		ClientID:        userID,
		StartTime:       time.Now().Add(24 * time.Hour),
		EndTime:         time.Now().Add(25 * time.Hour),
		SlotKey:         &slotKey,
		Status:          models.SessionStatusPending,
		PriceCents:      totalCents,
		SponsoredPoolID: poolID,
	}).Error)
	require.NoError(t, db.Create(&models.PaymentRecord{
		SessionID:        sessionID,
		UserID:           userID,
		TotalCents:       totalCents,
		OutOfPocketCents: totalCents,
		Status:           models.PaymentStatusPending,
	}).Error)
}

func TestAllocateDrawsPoolThenGrant(t *testing.T) {
	db := newTestDB(t)
	l := New(db)

	pool := models.SponsoredPool{SponsorName: "Acme", AllocatedCents: 6000, RemainingCents: 6000, IsActive: true}
	require.NoError(t, db.Create(&pool).Error)
	require.NoError(t, db.Create(&models.SubsidyGrant{UserID: 20, OriginalCents: 3000, RemainingCents: 3000}).Error)
	seedSession(t, db, 1, 20, 10000, &pool.ID)

	split, err := l.Allocate(context.Background(), AllocateInput{SessionID: 1, UserID: 20, SponsoredPoolID: &pool.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(6000), split.PoolCents)
	assert.Equal(t, int64(3000), split.GrantCents)
	assert.Equal(t, int64(9000), split.SubsidizedCents)
	assert.Equal(t, int64(1000), split.OutOfPocketCents)

	var gotPool models.SponsoredPool
	require.NoError(t, db.First(&gotPool, pool.ID).Error)
	assert.Equal(t, int64(0), gotPool.RemainingCents)

	var grant models.SubsidyGrant
	require.NoError(t, db.Where("user_id = ?", 20).First(&grant).Error)
	assert.Equal(t, int64(0), grant.RemainingCents)

	var payment models.PaymentRecord
	require.NoError(t, db.Where("session_id = ?", 1).First(&payment).Error)
	assert.Equal(t, int64(9000), payment.SubsidizedCents)
	assert.Equal(t, int64(1000), payment.OutOfPocketCents)
	assert.True(t, payment.SplitIsConsistent())

	var session models.TherapySession
	require.NoError(t, db.First(&session, 1).Error)
	assert.Equal(t, int64(9000), session.SubsidyAppliedCents)
}

func TestAllocateSkipsExpiredGrants(t *testing.T) {
	db := newTestDB(t)
	l := New(db)

	expired := time.Now().Add(-time.Hour)
	soon := time.Now().Add(48 * time.Hour)
	later := time.Now().Add(30 * 24 * time.Hour)
	require.NoError(t, db.Create(&models.SubsidyGrant{UserID: 20, OriginalCents: 5000, RemainingCents: 5000, ExpiresAt: &expired}).Error)
	require.NoError(t, db.Create(&models.SubsidyGrant{UserID: 20, OriginalCents: 2000, RemainingCents: 2000, ExpiresAt: &later}).Error)
	require.NoError(t, db.Create(&models.SubsidyGrant{UserID: 20, OriginalCents: 1000, RemainingCents: 1000, ExpiresAt: &soon}).Error)
	seedSession(t, db, 1, 20, 4000, nil)

	split, err := l.Allocate(context.Background(), AllocateInput{SessionID: 1, UserID: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), split.GrantCents)
	assert.Equal(t, int64(1000), split.OutOfPocketCents)

	// Soonest-expiring grant is drained first.
	var grants []models.SubsidyGrant
	require.NoError(t, db.Where("user_id = ?", 20).Order("id ASC").Find(&grants).Error)
	assert.Equal(t, int64(5000), grants[0].RemainingCents, "expired grant untouched")
	assert.Equal(t, int64(0), grants[1].RemainingCents, "later grant drained after sooner one")
	assert.Equal(t, int64(0), grants[2].RemainingCents, "soonest grant drained first")
}

func TestAllocatePartialFundingIsNotAnError(t *testing.T) {
	db := newTestDB(t)
	l := New(db)

	seedSession(t, db, 1, 20, 8000, nil)

	split, err := l.Allocate(context.Background(), AllocateInput{SessionID: 1, UserID: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(0), split.SubsidizedCents)
	assert.Equal(t, int64(8000), split.OutOfPocketCents)
}

func TestAllocateIgnoresInactivePool(t *testing.T) {
	db := newTestDB(t)
	l := New(db)

	pool := models.SponsoredPool{SponsorName: "Gone", AllocatedCents: 9000, RemainingCents: 9000, IsActive: false}
	require.NoError(t, db.Create(&pool).Error)
	seedSession(t, db, 1, 20, 5000, &pool.ID)

	split, err := l.Allocate(context.Background(), AllocateInput{SessionID: 1, UserID: 20, SponsoredPoolID: &pool.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), split.PoolCents)
	assert.Equal(t, int64(5000), split.OutOfPocketCents)
}

func TestAllocateRejectsNonPendingPayment(t *testing.T) {
	db := newTestDB(t)
	l := New(db)

	seedSession(t, db, 1, 20, 5000, nil)
	require.NoError(t, db.Model(&models.PaymentRecord{}).Where("session_id = ?", 1).
		Update("status", models.PaymentStatusSucceeded).Error)

	_, err := l.Allocate(context.Background(), AllocateInput{SessionID: 1, UserID: 20})
	assert.Error(t, err)
}

func TestAllocateConcurrentDrawsNeverOverdraw(t *testing.T) {
	db := newTestDB(t)
	l := New(db)

	pool := models.SponsoredPool{SponsorName: "Shared", AllocatedCents: 10000, RemainingCents: 10000, IsActive: true}
	require.NoError(t, db.Create(&pool).Error)

	const sessions = 6
	for i := uint(1); i <= sessions; i++ {
		seedSession(t, db, i, 20+i, 4000, &pool.ID)
	}

	var wg sync.WaitGroup
	splits := make([]Split, sessions)
	errs := make([]error, sessions)
	for i := uint(1); i <= sessions; i++ {
		wg.Add(1)
		go func(i uint) {
			defer wg.Done()
			splits[i-1], errs[i-1] = l.Allocate(context.Background(), AllocateInput{
				SessionID:       i,
				UserID:          20 + i,
				SponsoredPoolID: &pool.ID,
			})
		}(i)
	}
	wg.Wait()

	var drawn int64
	for i := range errs {
		require.NoError(t, errs[i])
		drawn += splits[i].PoolCents
		assert.Equal(t, int64(4000), splits[i].SubsidizedCents+splits[i].OutOfPocketCents)
	}

	var gotPool models.SponsoredPool
	require.NoError(t, db.First(&gotPool, pool.ID).Error)
	assert.GreaterOrEqual(t, gotPool.RemainingCents, int64(0), "pool can never go negative")
	assert.Equal(t, int64(10000)-drawn, gotPool.RemainingCents)
}
