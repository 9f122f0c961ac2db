package settlement

import (
	"errors"
	"strconv"
	"time"

	"github.com/renavest/renavest-next-sub002/internal/pkg/env"
)

var (
	// ErrSessionNotFound means the referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotAuthorized means the caller does not own the session.
	ErrNotAuthorized = errors.New("session does not belong to this therapist")
	// ErrAlreadyCompleted means the session already reached a terminal state.
	ErrAlreadyCompleted = errors.New("session is already completed")
	// ErrSessionNotEnded means completion was requested before the slot's end.
	ErrSessionNotEnded = errors.New("session has not ended yet")
	// ErrAlreadySettled means the payment already reached the state the
	// operation would produce. Callers treat it as success.
	ErrAlreadySettled = errors.New("payment already settled")
	// ErrPaymentNotCollectable means the session's payment is in a state
	// from which no money can be collected (failed, canceled, refunded, or
	// never authorized). Completing such a session must not mint a payout.
	ErrPaymentNotCollectable = errors.New("payment cannot be collected")
	// ErrSessionCancelled means a settlement write targeted a session that
	// was cancelled in the meantime. Cancelled sessions are never revived.
	ErrSessionCancelled = errors.New("session is cancelled")
	// ErrCaptureFailed means the gateway capture exhausted its retry budget.
	ErrCaptureFailed = errors.New("payment capture failed")
)

// Config carries the platform constants settlement needs.
type Config struct {
	// PayoutRatePercent is the therapist share of a session total, in whole
	// percent. The platform keeps the flooring remainder.
	PayoutRatePercent int64
	// AutoCompleteGrace is how long after a session's scheduled end the
	// sweeper waits before completing it on the therapist's behalf.
	AutoCompleteGrace time.Duration
	// SweepInterval is how often the auto-completion sweeper runs.
	SweepInterval time.Duration
}

const (
	defaultPayoutRatePercent = 90
	defaultAutoCompleteGrace = 24 * time.Hour
	defaultSweepInterval     = time.Hour
)

// ConfigFromEnv reads settlement constants from the environment, falling
// back to platform defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		PayoutRatePercent: defaultPayoutRatePercent,
		AutoCompleteGrace: defaultAutoCompleteGrace,
		SweepInterval:     defaultSweepInterval,
	}

	if v, err := strconv.ParseInt(env.GetEnv("PAYOUT_RATE_PERCENT", ""), 10, 64); err == nil && v > 0 && v <= 100 {
		cfg.PayoutRatePercent = v
	}
	if v, err := strconv.Atoi(env.GetEnv("AUTO_COMPLETE_GRACE_HOURS", "")); err == nil && v > 0 {
		cfg.AutoCompleteGrace = time.Duration(v) * time.Hour
	}
	if v, err := strconv.Atoi(env.GetEnv("AUTO_COMPLETE_INTERVAL_MINUTES", "")); err == nil && v > 0 {
		cfg.SweepInterval = time.Duration(v) * time.Minute
	}
	return cfg
}
