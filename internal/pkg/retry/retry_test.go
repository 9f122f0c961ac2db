package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("gateway timeout")
var errTerminal = errors.New("invalid request")

func alwaysRetryable(error) bool { return true }

func onlyTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDoSucceedsFirstAttempt(t *testing.T) {
	e := NewExecutor(3, time.Millisecond, 10*time.Millisecond)

	calls := 0
	res := e.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	}, alwaysRetryable)

	assert.True(t, res.Succeeded())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	e := NewExecutor(3, time.Millisecond, 10*time.Millisecond)

	calls := 0
	res := e.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, onlyTransient)

	assert.True(t, res.Succeeded())
	assert.Equal(t, 3, res.Attempts)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	e := NewExecutor(5, time.Millisecond, 10*time.Millisecond)

	calls := 0
	res := e.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errTerminal
	}, onlyTransient)

	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, errTerminal)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttemptCeiling(t *testing.T) {
	e := NewExecutor(4, time.Millisecond, 10*time.Millisecond)

	calls := 0
	res := e.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errTransient
	}, alwaysRetryable)

	assert.False(t, res.Succeeded())
	assert.ErrorIs(t, res.Err, errTransient)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 4, calls)
}

func TestDoNilClassifierIsTerminal(t *testing.T) {
	e := NewExecutor(5, time.Millisecond, 10*time.Millisecond)

	res := e.Do(context.Background(), "op", func(context.Context) error {
		return errTransient
	}, nil)

	assert.Equal(t, 1, res.Attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	e := NewExecutor(10, 50*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := e.Do(ctx, "op", func(context.Context) error {
		calls++
		return errTransient
	}, alwaysRetryable)

	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Less(t, calls, 10)
}

func TestDelayForMonotonicAndCapped(t *testing.T) {
	e := NewExecutor(8, 10*time.Millisecond, 80*time.Millisecond)

	prev := time.Duration(0)
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		d := e.delayFor(attempt)
		assert.GreaterOrEqual(t, d, prev, "delay must be non-decreasing")
		assert.LessOrEqual(t, d, e.MaxDelay, "delay must stay under the ceiling")
		prev = d
	}
	assert.Equal(t, e.MaxDelay, e.delayFor(e.MaxAttempts))
}

func TestNewExecutorDefaults(t *testing.T) {
	e := NewExecutor(0, 0, 0)
	assert.Equal(t, DefaultMaxAttempts, e.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, e.BaseDelay)
	assert.Equal(t, DefaultMaxDelay, e.MaxDelay)
}
