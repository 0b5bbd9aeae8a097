package model

import "fmt"

// Unlimited is the AllowedLimit value that disables the ceiling for a channel.
const Unlimited int64 = -1

// UsageQuota is the per-owner, per-channel send budget. UsedLimit only ever
// grows, and while AllowedLimit is finite it never exceeds AllowedLimit.
type UsageQuota struct {
	OwnerID      string
	Channel      Channel
	AllowedLimit int64
	UsedLimit    int64
}

// IsUnlimited reports whether the quota has no ceiling.
func (q UsageQuota) IsUnlimited() bool {
	return q.AllowedLimit == Unlimited
}

// Exhausted reports whether no further sends may be admitted.
func (q UsageQuota) Exhausted() bool {
	return !q.IsUnlimited() && q.UsedLimit >= q.AllowedLimit
}

// Remaining returns the number of sends still admissible and whether the
// figure is bounded at all. A negative balance is reported as zero.
func (q UsageQuota) Remaining() (int64, bool) {
	if q.IsUnlimited() {
		return 0, false
	}
	rem := q.AllowedLimit - q.UsedLimit
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

// String renders the quota as used/allowed for log lines.
func (q UsageQuota) String() string {
	if q.IsUnlimited() {
		return fmt.Sprintf("%d/unlimited", q.UsedLimit)
	}
	return fmt.Sprintf("%d/%d", q.UsedLimit, q.AllowedLimit)
}

// PlanQuotas maps each channel to its default AllowedLimit for one plan.
type PlanQuotas map[Channel]int64

// DefaultPlans returns the built-in quota defaults per plan tier.
func DefaultPlans() map[Plan]PlanQuotas {
	return map[Plan]PlanQuotas{
		PlanFree: {
			ChannelEmail: 5000,
			ChannelSMS:   0,
			ChannelPush:  1000,
		},
		PlanPro: {
			ChannelEmail: 100000,
			ChannelSMS:   1000,
			ChannelPush:  50000,
		},
		PlanEnterprise: {
			ChannelEmail: Unlimited,
			ChannelSMS:   Unlimited,
			ChannelPush:  Unlimited,
		},
	}
}
