package application

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// RateTier names one of the independent rate windows.
type RateTier string

const (
	TierGlobal RateTier = "global"
	TierUser   RateTier = "user"
	TierBulk   RateTier = "bulk"
)

// RateLimits configures the window size and per-tier ceilings.
type RateLimits struct {
	Window  time.Duration
	Global  int
	PerUser int
	Bulk    int
}

// DefaultRateLimits mirrors the limits notipi has always shipped with.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Window:  time.Minute,
		Global:  100,
		PerUser: 50,
		Bulk:    20,
	}
}

// RateDecision describes the window state after an admitted request, for
// RateLimit-* response headers.
type RateDecision struct {
	Limit     int
	Remaining int
	Reset     time.Duration
}

var tierMessages = map[RateTier]string{
	TierGlobal: "Too many requests, please try again later.",
	TierUser:   "You have exceeded the rate limit. Please try again later.",
	TierBulk:   "You have exceeded the bulk email rate limit. Please try again later.",
}

// RateLimiter enforces rolling windows held in a shared CounterStore so
// every ingress process sees the same counts.
type RateLimiter struct {
	store   driven.CounterStore
	limits  RateLimits
	metrics *Metrics
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter. metrics may be nil.
func NewRateLimiter(store driven.CounterStore, limits RateLimits, metrics *Metrics) *RateLimiter {
	return &RateLimiter{store: store, limits: limits, metrics: metrics, now: time.Now}
}

// Limits returns the configured limits.
func (l *RateLimiter) Limits() RateLimits {
	return l.limits
}

// Allow records one request for tier under key. A request past the ceiling
// returns a KindRateLimited error whose RetryAfter is the time until the
// oldest counted request leaves the window.
func (l *RateLimiter) Allow(ctx context.Context, tier RateTier, key string) (RateDecision, error) {
	limit := l.limitFor(tier)
	now := l.now()

	res, err := l.store.Hit(ctx, windowKey(tier, key), l.limits.Window, limit, now)
	if err != nil {
		return RateDecision{}, internalError("rate limit store", err)
	}

	reset := retryAfter(res.Oldest, l.limits.Window, now)
	if !res.Admitted {
		l.metrics.rateLimited(tier)
		slog.Warn("rate limit exceeded", "tier", tier, "key", key, "retry_after", reset)
		return RateDecision{Limit: limit, Remaining: 0, Reset: reset}, &Error{
			Kind:       KindRateLimited,
			Message:    tierMessages[tier],
			RetryAfter: reset,
			Details:    map[string]any{"retryAfter": RetryAfterSeconds(reset)},
		}
	}

	return RateDecision{Limit: limit, Remaining: limit - res.Count, Reset: reset}, nil
}

func (l *RateLimiter) limitFor(tier RateTier) int {
	switch tier {
	case TierGlobal:
		return l.limits.Global
	case TierBulk:
		return l.limits.Bulk
	default:
		return l.limits.PerUser
	}
}

func windowKey(tier RateTier, key string) string {
	return "rl:" + string(tier) + ":" + key
}

func retryAfter(oldest time.Time, window time.Duration, now time.Time) time.Duration {
	if oldest.IsZero() {
		return window
	}
	d := oldest.Add(window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RetryAfterSeconds rounds d up to whole seconds for Retry-After headers.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
