package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// Sentinel errors returned by JobQueue implementations.
var (
	// ErrQueueEmpty indicates no job is currently claimable.
	ErrQueueEmpty = errors.New("queue empty")

	// ErrJobNotFound indicates the requested job does not exist or was pruned.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists indicates a job with the same id was already enqueued.
	ErrJobExists = errors.New("job already exists")
)

// JobQueue defines the driven port for the durable work queue.
//
// Jobs move queued -> active -> completed, back to queued with a future
// RunAt on retry, or to failed once attempts are exhausted. Completed and
// failed are terminal.
type JobQueue interface {
	// Enqueue durably stores job in the queued state. Returns ErrJobExists on
	// id collision.
	Enqueue(ctx context.Context, job model.Job) error

	// Claim atomically leases the next runnable job until now+lease and
	// increments its attempt count. A runnable job is queued with RunAt <= now,
	// or active with an expired lease. Returns ErrQueueEmpty when none exists.
	Claim(ctx context.Context, now time.Time, lease time.Duration) (*model.Job, error)

	// Complete marks an active job completed.
	Complete(ctx context.Context, id string, now time.Time) error

	// Retry returns an active job to queued, runnable at runAt.
	Retry(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error

	// Fail marks an active job terminally failed.
	Fail(ctx context.Context, id string, lastErr string, now time.Time) error

	// Get returns the job or ErrJobNotFound.
	Get(ctx context.Context, id string) (*model.Job, error)

	// Stats counts jobs per state.
	Stats(ctx context.Context) (model.QueueStats, error)

	// Prune removes finished jobs that fall outside policy and returns how
	// many rows were deleted.
	Prune(ctx context.Context, policy model.RetentionPolicy, now time.Time) (int64, error)
}
