package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// QuotaGuard pre-checks sends against the owner's per-channel quota. It takes
// no lock: concurrent requests may race past the same remaining budget, and
// the usage ledger clamps the final count at the ceiling.
type QuotaGuard struct {
	quotas  driven.QuotaStore
	owners  driven.OwnerStore
	plans   map[model.Plan]model.PlanQuotas
	metrics *Metrics
}

// NewQuotaGuard creates a QuotaGuard. plans supplies per-tier defaults used
// to provision a quota the first time an owner sends on a channel.
func NewQuotaGuard(quotas driven.QuotaStore, owners driven.OwnerStore, plans map[model.Plan]model.PlanQuotas, metrics *Metrics) *QuotaGuard {
	if plans == nil {
		plans = model.DefaultPlans()
	}
	return &QuotaGuard{quotas: quotas, owners: owners, plans: plans, metrics: metrics}
}

// Load returns the owner's quota for ch, provisioning it from the owner's
// plan when missing. Unknown owners are treated as free tier.
func (g *QuotaGuard) Load(ctx context.Context, ownerID string, ch model.Channel) (*model.UsageQuota, error) {
	q, err := g.quotas.Get(ctx, ownerID, ch)
	if err != nil {
		return nil, internalError("load quota", err)
	}
	if q != nil {
		return q, nil
	}

	plan := model.PlanFree
	owner, err := g.owners.Get(ctx, ownerID)
	if err != nil {
		return nil, internalError("load owner", err)
	}
	if owner != nil {
		plan = owner.Plan
	}

	allowed, ok := g.plans[plan][ch]
	if !ok {
		allowed = model.DefaultPlans()[model.PlanFree][ch]
	}

	q, err = g.quotas.Provision(ctx, model.UsageQuota{OwnerID: ownerID, Channel: ch, AllowedLimit: allowed})
	if err != nil {
		return nil, internalError("provision quota", err)
	}
	slog.Info("quota provisioned", "owner", ownerID, "channel", ch, "plan", plan, "quota", q.String())
	return q, nil
}

// CheckSingle rejects when a finite quota is already used up.
func (g *QuotaGuard) CheckSingle(ctx context.Context, ownerID string, ch model.Channel) error {
	q, err := g.Load(ctx, ownerID, ch)
	if err != nil {
		return err
	}
	if q.Exhausted() {
		g.metrics.quotaDenied(ch)
		return &Error{
			Kind:    KindQuotaExceeded,
			Message: fmt.Sprintf("%s usage limit exceeded", channelLabel(ch)),
			Details: map[string]any{"usage": usageDetails(q)},
		}
	}
	return nil
}

// BulkAdmission is the outcome of a bulk pre-check.
type BulkAdmission struct {
	Valid   []string
	Invalid []string
}

// CheckBulk partitions recipients and admits the batch only if every valid
// recipient fits in the remaining budget. Nothing is partially admitted.
func (g *QuotaGuard) CheckBulk(ctx context.Context, ownerID string, ch model.Channel, recipients []string) (BulkAdmission, error) {
	valid, invalid := PartitionRecipients(ch, recipients)
	if len(valid) == 0 {
		return BulkAdmission{}, &Error{
			Kind:    KindValidation,
			Message: fmt.Sprintf("No valid %s recipients provided", ch),
			Details: map[string]any{"invalid": nonNil(invalid)},
		}
	}

	q, err := g.Load(ctx, ownerID, ch)
	if err != nil {
		return BulkAdmission{}, err
	}

	if remaining, bounded := q.Remaining(); bounded && int64(len(valid)) > remaining {
		g.metrics.quotaDenied(ch)
		return BulkAdmission{}, &Error{
			Kind:    KindQuotaExceeded,
			Message: fmt.Sprintf("Insufficient quota. Required: %d, Available: %d", len(valid), remaining),
			Details: map[string]any{"usage": usageDetails(q)},
		}
	}

	return BulkAdmission{Valid: valid, Invalid: invalid}, nil
}

func usageDetails(q *model.UsageQuota) map[string]int64 {
	return map[string]int64{"used": q.UsedLimit, "allowed": q.AllowedLimit}
}

func channelLabel(ch model.Channel) string {
	switch ch {
	case model.ChannelSMS:
		return "SMS"
	case model.ChannelPush:
		return "Push"
	default:
		return "Email"
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
