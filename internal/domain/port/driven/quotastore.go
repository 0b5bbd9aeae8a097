package driven

import (
	"context"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// QuotaStore defines the driven port for per-owner, per-channel quotas.
type QuotaStore interface {
	// Get returns the quota or (nil, nil) if none has been provisioned.
	Get(ctx context.Context, ownerID string, channel model.Channel) (*model.UsageQuota, error)

	// Provision inserts q unless a row for (owner, channel) already exists and
	// returns the row as stored afterwards.
	Provision(ctx context.Context, q model.UsageQuota) (*model.UsageQuota, error)

	// ListByOwner returns all provisioned quotas for ownerID.
	ListByOwner(ctx context.Context, ownerID string) ([]model.UsageQuota, error)
}

// OwnerStore defines the driven port for the owner to plan tier mapping.
type OwnerStore interface {
	// Upsert creates the owner or updates its plan.
	Upsert(ctx context.Context, owner model.Owner) error

	// Get returns the owner or (nil, nil) if unknown.
	Get(ctx context.Context, id string) (*model.Owner, error)
}
