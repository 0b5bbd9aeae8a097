package driven

import (
	"context"
	"time"
)

// HitResult reports the state of a sliding window after a Hit.
type HitResult struct {
	// Count is the number of admitted hits in the window, including this one
	// when Admitted is true.
	Count int
	// Admitted is false when the window was already at its limit.
	Admitted bool
	// Oldest is the timestamp of the oldest hit still in the window. It is the
	// zero time when the window is empty.
	Oldest time.Time
}

// CounterStore is the shared, atomically updated store behind rate limiting
// and idempotency markers. Implementations must be safe for concurrent use by
// several processes when they claim to be shared.
type CounterStore interface {
	// Hit records one request against key if fewer than limit requests were
	// admitted in (now-window, now]. The prune, count and insert happen atomically.
	Hit(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (HitResult, error)

	// Get returns the current value of a counter. Missing or expired counters read as 0.
	Get(ctx context.Context, key string, now time.Time) (int64, error)

	// CompareAndSet sets key to newVal with the given ttl only if its current
	// value equals oldVal. Missing or expired counters compare as 0. A zero ttl
	// means the counter never expires.
	CompareAndSet(ctx context.Context, key string, oldVal, newVal int64, ttl time.Duration, now time.Time) (bool, error)

	// Prune drops expired counters and window hits older than maxWindow.
	Prune(ctx context.Context, maxWindow time.Duration, now time.Time) (int64, error)
}
