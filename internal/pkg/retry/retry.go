package retry

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
)

// Executor runs a fallible I/O-bound operation with bounded attempts and
// exponential backoff. A classifier decides which errors are worth another
// attempt; everything else stops the loop immediately.
type Executor struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Result reports what a single Do call did.
type Result struct {
	Attempts  int
	TotalTime time.Duration
	Err       error
}

// Succeeded reports whether the operation eventually returned nil.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// NewExecutor creates an executor, falling back to defaults for zero values.
func NewExecutor(maxAttempts int, baseDelay, maxDelay time.Duration) *Executor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Executor{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
	}
}

// Do executes op until it succeeds, fails terminally, exhausts the attempt
// ceiling, or the context is done. retryable classifies errors; a nil
// classifier treats every error as terminal.
func (e *Executor) Do(ctx context.Context, name string, op func(context.Context) error, retryable func(error) bool) Result {
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1, TotalTime: time.Since(start), Err: err}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return Result{Attempts: attempt, TotalTime: time.Since(start)}
		}

		if retryable == nil || !retryable(lastErr) {
			log.Warnf("[Retry] %s failed terminally on attempt %d: %v", name, attempt, lastErr)
			return Result{Attempts: attempt, TotalTime: time.Since(start), Err: lastErr}
		}

		if attempt < e.MaxAttempts {
			delay := e.delayFor(attempt)
			log.Warnf("[Retry] %s failed on attempt %d/%d, retrying in %v: %v", name, attempt, e.MaxAttempts, delay, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Result{Attempts: attempt, TotalTime: time.Since(start), Err: ctx.Err()}
			}
		}
	}

	log.Errorf("[Retry] %s exhausted %d attempts: %v", name, e.MaxAttempts, lastErr)
	return Result{Attempts: e.MaxAttempts, TotalTime: time.Since(start), Err: lastErr}
}

// delayFor doubles the base delay per completed attempt, capped at MaxDelay.
func (e *Executor) delayFor(attempt int) time.Duration {
	delay := e.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= e.MaxDelay {
			return e.MaxDelay
		}
	}
	if delay > e.MaxDelay {
		return e.MaxDelay
	}
	return delay
}
