package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

func TestAuditRepo_AppendAndListByJob(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Append(ctx, model.AuditRecord{
			OwnerID:      "owner-1",
			CredentialID: "cred-1",
			Channel:      model.ChannelEmail,
			Outcome:      model.OutcomeFailure,
			JobID:        "job_1",
			Attempt:      i,
			Metadata:     map[string]string{"error": "connection refused"},
			CreatedAt:    fixedNow.Add(time.Duration(i) * time.Second),
		}))
	}

	records, err := repo.ListByJob(ctx, "job_1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 1, records[0].Attempt)
	assert.Equal(t, 3, records[2].Attempt)
	assert.Equal(t, "connection refused", records[0].Metadata["error"])
	assert.Equal(t, model.OutcomeFailure, records[0].Outcome)
}

func TestAuditRepo_ListByOwnerNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAuditRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, model.AuditRecord{OwnerID: "owner-1", Channel: model.ChannelSMS, Outcome: model.OutcomeSuccess, JobID: "job_a", Attempt: 1, CreatedAt: fixedNow}))
	require.NoError(t, repo.Append(ctx, model.AuditRecord{OwnerID: "owner-1", Channel: model.ChannelSMS, Outcome: model.OutcomeSuccess, JobID: "job_b", Attempt: 1, CreatedAt: fixedNow.Add(time.Minute)}))
	require.NoError(t, repo.Append(ctx, model.AuditRecord{OwnerID: "owner-2", Channel: model.ChannelSMS, Outcome: model.OutcomeSuccess, JobID: "job_c", Attempt: 1, CreatedAt: fixedNow}))

	records, err := repo.ListByOwner(ctx, "owner-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "job_b", records[0].JobID)
	assert.Empty(t, records[0].Metadata)
}
