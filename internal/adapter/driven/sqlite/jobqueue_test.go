package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

func TestJobQueue_EnqueueAndClaim(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestJob("job_1")))

	job, err := q.Claim(ctx, fixedNow, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job_1", job.ID)
	assert.Equal(t, model.JobStateActive, job.State)
	assert.Equal(t, 1, job.AttemptCount)
	assert.Equal(t, "<p>Hi</p>", job.Payload)

	_, err = q.Claim(ctx, fixedNow, 30*time.Second)
	assert.ErrorIs(t, err, driven.ErrQueueEmpty, "leased job must not be claimed twice")
}

func TestJobQueue_EnqueueDuplicate(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestJob("job_1")))
	assert.ErrorIs(t, q.Enqueue(ctx, newTestJob("job_1")), driven.ErrJobExists)
}

func TestJobQueue_ClaimRespectsRunAt(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	job := newTestJob("job_1")
	job.RunAt = fixedNow.Add(time.Minute)
	require.NoError(t, q.Enqueue(ctx, job))

	_, err := q.Claim(ctx, fixedNow, time.Second)
	assert.ErrorIs(t, err, driven.ErrQueueEmpty)

	got, err := q.Claim(ctx, fixedNow.Add(time.Minute), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job_1", got.ID)
}

func TestJobQueue_ExpiredLeaseIsReclaimed(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestJob("job_1")))
	_, err := q.Claim(ctx, fixedNow, 10*time.Second)
	require.NoError(t, err)

	job, err := q.Claim(ctx, fixedNow.Add(11*time.Second), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "job_1", job.ID)
	assert.Equal(t, 2, job.AttemptCount)
}

func TestJobQueue_RetryThenComplete(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestJob("job_1")))
	_, err := q.Claim(ctx, fixedNow, time.Minute)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, "job_1", fixedNow.Add(2*time.Second), "smtp: 421", fixedNow))

	queued, err := q.Get(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStateQueued, queued.State)
	assert.Equal(t, "smtp: 421", queued.LastError)

	job, err := q.Claim(ctx, fixedNow.Add(2*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, job.AttemptCount)

	require.NoError(t, q.Complete(ctx, "job_1", fixedNow.Add(3*time.Second)))

	done, err := q.Get(ctx, "job_1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStateCompleted, done.State)
	require.NotNil(t, done.FinishedAt)
}

func TestJobQueue_TransitionRequiresActive(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTestJob("job_1")))

	assert.ErrorIs(t, q.Complete(ctx, "job_1", fixedNow), driven.ErrJobNotFound)
	assert.ErrorIs(t, q.Fail(ctx, "missing", "x", fixedNow), driven.ErrJobNotFound)
}

func TestJobQueue_Stats(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	for _, id := range []string{"job_1", "job_2", "job_3", "job_4"} {
		require.NoError(t, q.Enqueue(ctx, newTestJob(id)))
	}
	a, err := q.Claim(ctx, fixedNow, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, a.ID, fixedNow))
	b, err := q.Claim(ctx, fixedNow, time.Minute)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, b.ID, "boom", fixedNow))
	_, err = q.Claim(ctx, fixedNow, time.Minute)
	require.NoError(t, err)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStats{Waiting: 1, Active: 1, Completed: 1, Failed: 1}, stats)
}

func TestJobQueue_PruneRetention(t *testing.T) {
	db := setupTestDB(t)
	q := NewJobQueue(db)
	ctx := context.Background()

	finish := func(id string, at time.Time, ok bool) {
		t.Helper()
		job := newTestJob(id)
		job.RunAt = at
		job.CreatedAt = at
		require.NoError(t, q.Enqueue(ctx, job))
		claimed, err := q.Claim(ctx, at, time.Minute)
		require.NoError(t, err)
		require.Equal(t, id, claimed.ID)
		if ok {
			require.NoError(t, q.Complete(ctx, id, at))
		} else {
			require.NoError(t, q.Fail(ctx, id, "boom", at))
		}
	}

	finish("old", fixedNow.Add(-48*time.Hour), true)
	finish("c1", fixedNow.Add(-3*time.Minute), true)
	finish("c2", fixedNow.Add(-2*time.Minute), true)
	finish("c3", fixedNow.Add(-1*time.Minute), true)
	finish("f1", fixedNow.Add(-2*time.Minute), false)
	finish("f2", fixedNow.Add(-1*time.Minute), false)

	n, err := q.Prune(ctx, model.RetentionPolicy{CompletedCount: 2, CompletedMaxAge: 24 * time.Hour, FailedCount: 1}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, id := range []string{"old", "c1", "f1"} {
		_, err := q.Get(ctx, id)
		assert.ErrorIs(t, err, driven.ErrJobNotFound, id)
	}
	for _, id := range []string{"c2", "c3", "f2"} {
		_, err := q.Get(ctx, id)
		assert.NoError(t, err, id)
	}
}
