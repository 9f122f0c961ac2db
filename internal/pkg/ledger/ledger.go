package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/renavest/renavest-next-sub002/app/models"
)

// How often a whole allocation is retried after losing a guarded-decrement
// race against a concurrent booking drawing on the same funds.
const defaultMaxAttempts = 3

// errAllocationRaced signals that a balance moved between the read and the
// guarded write. The transaction rolls back and the full allocation retries
// against fresh balances.
var errAllocationRaced = errors.New("funding balance changed concurrently")

// ErrAllocationContended is returned when every retry lost its race.
var ErrAllocationContended = errors.New("subsidy allocation contended, try again")

// Split is the outcome of funding one session. Partial funding is normal:
// whatever the pool and grants cannot cover is out-of-pocket, never an
// error. All amounts are integer cents and
// SubsidizedCents + OutOfPocketCents always equals the session total.
type Split struct {
	TotalCents       int64
	PoolCents        int64
	GrantCents       int64
	SubsidizedCents  int64
	OutOfPocketCents int64
}

// AllocateInput identifies the session being funded and the funding sources
// it may draw on.
type AllocateInput struct {
	SessionID       uint
	UserID          uint
	SponsoredPoolID *uint
	Now             time.Time
}

// Ledger computes and persists the subsidy split for booked sessions.
// Precedence is a business rule and fixed: sponsored pool first, then
// unexpired grants (soonest expiry first), then out-of-pocket.
type Ledger struct {
	db          *gorm.DB
	maxAttempts int
}

// New creates a subsidy ledger on the given GORM handle.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db, maxAttempts: defaultMaxAttempts}
}

// Allocate splits the session's total across its funding sources and
// decrements the consumed balances, all inside one transaction. A lost
// balance race rolls the whole allocation back and retries it from scratch,
// so a drained pool naturally fails over to the next precedence tier.
func (l *Ledger) Allocate(ctx context.Context, in AllocateInput) (Split, error) {
	if in.SessionID == 0 || in.UserID == 0 {
		return Split{}, errors.New("session and user are required")
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var split Split
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			split, txErr = l.allocateOnce(tx, in, now)
			return txErr
		})
		if err == nil {
			return split, nil
		}
		if !errors.Is(err, errAllocationRaced) {
			return Split{}, err
		}
		log.Warnf("[Ledger] allocation for session %d raced (attempt %d/%d), retrying", in.SessionID, attempt, l.maxAttempts)
	}
	return Split{}, ErrAllocationContended
}

func (l *Ledger) allocateOnce(tx *gorm.DB, in AllocateInput, now time.Time) (Split, error) {
	var payment models.PaymentRecord
	if err := tx.Where("session_id = ?", in.SessionID).First(&payment).Error; err != nil {
		return Split{}, fmt.Errorf("load payment record for session %d: %w", in.SessionID, err)
	}
	if payment.Status != models.PaymentStatusPending {
		return Split{}, fmt.Errorf("payment record for session %d is %s, not pending", in.SessionID, payment.Status)
	}

	total := payment.TotalCents

	var poolAvail int64
	var pool models.SponsoredPool
	if in.SponsoredPoolID != nil {
		if err := tx.Where("id = ? AND is_active = ?", *in.SponsoredPoolID, true).First(&pool).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return Split{}, err
			}
			// Missing or deactivated pool contributes nothing.
		} else {
			poolAvail = pool.RemainingCents
		}
	}

	var grants []models.SubsidyGrant
	err := tx.Where("user_id = ? AND remaining_cents > 0", in.UserID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("expires_at IS NULL, expires_at ASC, id ASC").
		Find(&grants).Error
	if err != nil {
		return Split{}, err
	}

	grantAvail := make([]int64, len(grants))
	for i, g := range grants {
		grantAvail[i] = g.RemainingCents
	}

	poolDraw, grantDraws, outOfPocket := planSplit(total, poolAvail, grantAvail)

	if poolDraw > 0 {
		res := tx.Model(&models.SponsoredPool{}).
			Where("id = ? AND remaining_cents >= ?", pool.ID, poolDraw).
			Update("remaining_cents", gorm.Expr("remaining_cents - ?", poolDraw))
		if res.Error != nil {
			return Split{}, res.Error
		}
		if res.RowsAffected == 0 {
			return Split{}, errAllocationRaced
		}
	}

	var grantTotal int64
	for i, draw := range grantDraws {
		if draw == 0 {
			continue
		}
		res := tx.Model(&models.SubsidyGrant{}).
			Where("id = ? AND remaining_cents >= ?", grants[i].ID, draw).
			Update("remaining_cents", gorm.Expr("remaining_cents - ?", draw))
		if res.Error != nil {
			return Split{}, res.Error
		}
		if res.RowsAffected == 0 {
			return Split{}, errAllocationRaced
		}
		grantTotal += draw
	}

	split := Split{
		TotalCents:       total,
		PoolCents:        poolDraw,
		GrantCents:       grantTotal,
		SubsidizedCents:  poolDraw + grantTotal,
		OutOfPocketCents: outOfPocket,
	}
	if split.SubsidizedCents+split.OutOfPocketCents != total {
		return Split{}, fmt.Errorf("split drifted for session %d: %d+%d != %d",
			in.SessionID, split.SubsidizedCents, split.OutOfPocketCents, total)
	}

	if err := tx.Model(&payment).Updates(map[string]interface{}{
		"subsidized_cents":    split.SubsidizedCents,
		"out_of_pocket_cents": split.OutOfPocketCents,
	}).Error; err != nil {
		return Split{}, err
	}

	return split, tx.Model(&models.TherapySession{}).
		Where("id = ?", in.SessionID).
		Update("subsidy_applied_cents", split.SubsidizedCents).Error
}

// planSplit is the pure precedence computation: pool up to its remaining,
// then grants in order, remainder out-of-pocket. Integer cents throughout.
func planSplit(total, poolAvail int64, grantAvail []int64) (poolDraw int64, grantDraws []int64, outOfPocket int64) {
	if total <= 0 {
		return 0, make([]int64, len(grantAvail)), 0
	}

	need := total

	poolDraw = min64(need, poolAvail)
	need -= poolDraw

	grantDraws = make([]int64, len(grantAvail))
	for i, avail := range grantAvail {
		if need == 0 {
			break
		}
		draw := min64(need, avail)
		grantDraws[i] = draw
		need -= draw
	}

	return poolDraw, grantDraws, need
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
