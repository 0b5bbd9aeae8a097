package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

func TestQuotaRepo_ProvisionAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuotaRepo(db)
	ctx := context.Background()

	missing, err := repo.Get(ctx, "owner-1", model.ChannelEmail)
	require.NoError(t, err)
	assert.Nil(t, missing)

	q, err := repo.Provision(ctx, model.UsageQuota{OwnerID: "owner-1", Channel: model.ChannelEmail, AllowedLimit: 100, UsedLimit: 89})
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.AllowedLimit)
	assert.Equal(t, int64(89), q.UsedLimit)

	got, err := repo.Get(ctx, "owner-1", model.ChannelEmail)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, *q, *got)
}

func TestQuotaRepo_ProvisionKeepsExistingRow(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuotaRepo(db)
	ctx := context.Background()

	_, err := repo.Provision(ctx, model.UsageQuota{OwnerID: "owner-1", Channel: model.ChannelSMS, AllowedLimit: 10, UsedLimit: 7})
	require.NoError(t, err)

	q, err := repo.Provision(ctx, model.UsageQuota{OwnerID: "owner-1", Channel: model.ChannelSMS, AllowedLimit: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(10), q.AllowedLimit)
	assert.Equal(t, int64(7), q.UsedLimit)
}

func TestQuotaRepo_ListByOwner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuotaRepo(db)
	ctx := context.Background()

	for _, ch := range model.Channels() {
		_, err := repo.Provision(ctx, model.UsageQuota{OwnerID: "owner-1", Channel: ch, AllowedLimit: model.Unlimited})
		require.NoError(t, err)
	}
	_, err := repo.Provision(ctx, model.UsageQuota{OwnerID: "owner-2", Channel: model.ChannelEmail, AllowedLimit: 5})
	require.NoError(t, err)

	quotas, err := repo.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, quotas, 3)
	for _, q := range quotas {
		assert.True(t, q.IsUnlimited())
	}
}

func TestOwnerRepo_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOwnerRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.Owner{ID: "owner-1", Plan: model.PlanFree, CreatedAt: fixedNow}))
	require.NoError(t, repo.Upsert(ctx, model.Owner{ID: "owner-1", Plan: model.PlanPro}))

	got, err := repo.Get(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.PlanPro, got.Plan)
	assert.True(t, fixedNow.Equal(got.CreatedAt))

	missing, err := repo.Get(ctx, "owner-2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
