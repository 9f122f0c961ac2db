package counter

import (
	"context"
	"strconv"

	"github.com/renavest/renavest-next-sub002/internal/pkg/cache"
)

const settlementCountersKey = "settlement:counters"

const (
	FieldEventsProcessed  = "events_processed"
	FieldEventsDuplicate  = "events_duplicate"
	FieldEventsFailed     = "events_failed"
	FieldEventsIgnored    = "events_ignored"
	FieldSweepsRun        = "sweeps_run"
	FieldSweepsCompleted  = "sweeps_completed_sessions"
	FieldCapturesRetried  = "captures_retried"
	FieldBookingConflicts = "booking_conflicts"
)

// Add increments a settlement counter field in Redis. Counters are
// operational telemetry only; failures are returned but callers treat them
// as non-fatal.
func Add(field string, n int64) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, settlementCountersKey, field, n).Err()
}

// Snapshot returns the current settlement counters as int64 values.
func Snapshot() (map[string]int64, error) {
	ctx := context.Background()
	raw, err := cache.GetClient().HGetAll(ctx, settlementCountersKey).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(raw))
	for field, val := range raw {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
