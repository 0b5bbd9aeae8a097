package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// QueuePolicy configures attempts, retry backoff and retention for jobs.
type QueuePolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	Retention   model.RetentionPolicy
}

// DefaultQueuePolicy returns 3 attempts, a 2s doubling backoff, and keeps at
// most 100 completed jobs for 24h and 500 failed jobs.
func DefaultQueuePolicy() QueuePolicy {
	return QueuePolicy{
		MaxAttempts: 3,
		BackoffBase: 2 * time.Second,
		Retention: model.RetentionPolicy{
			CompletedCount:  100,
			CompletedMaxAge: 24 * time.Hour,
			FailedCount:     500,
		},
	}
}

// RetryDelay returns the wait after the given failed attempt (1-based):
// base, 2*base, 4*base and so on, without jitter.
func (p QueuePolicy) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 24 * time.Hour
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// NewJobID returns a fresh job identifier. UUIDv7 combines a millisecond
// timestamp with random bits, so ids sort by creation and never repeat.
func NewJobID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return "job_" + id.String(), nil
}

// JobSpec is an admitted, rendered send waiting to become a Job.
type JobSpec struct {
	Identity   model.Identity
	Channel    model.Channel
	Subject    string
	Payload    string
	TemplateID string
}

// BulkJob is one successfully enqueued recipient of a bulk send.
type BulkJob struct {
	JobID     string `json:"jobId"`
	Recipient string `json:"to"`
	Status    string `json:"status"`
}

// BulkResult reports a bulk submission. Failed counts recipients whose job
// could not be enqueued; later delivery failures are not visible here.
type BulkResult struct {
	Queued            int
	Failed            int
	Invalid           int
	Jobs              []BulkJob
	InvalidRecipients []string
}

// Dispatcher turns admitted sends into durable jobs.
type Dispatcher struct {
	queue       driven.JobQueue
	policy      QueuePolicy
	concurrency int
	metrics     *Metrics
	newID       func() (string, error)
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher. concurrency bounds parallel enqueues in
// a bulk submission.
func NewDispatcher(queue driven.JobQueue, policy QueuePolicy, concurrency int, metrics *Metrics) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Dispatcher{
		queue:       queue,
		policy:      policy,
		concurrency: concurrency,
		metrics:     metrics,
		newID:       NewJobID,
		now:         time.Now,
	}
}

// Dispatch enqueues one job for recipient and returns its id once durable.
func (d *Dispatcher) Dispatch(ctx context.Context, in JobSpec, recipient string) (string, error) {
	id, err := d.newID()
	if err != nil {
		return "", internalError("generate job id", err)
	}

	now := d.now()
	job := model.Job{
		ID:           id,
		OwnerID:      in.Identity.Owner(),
		CredentialID: in.Identity.Credential(),
		Channel:      in.Channel,
		Recipient:    recipient,
		Subject:      in.Subject,
		Payload:      in.Payload,
		TemplateID:   in.TemplateID,
		MaxAttempts:  d.policy.MaxAttempts,
		State:        model.JobStateQueued,
		RunAt:        now,
		CreatedAt:    now,
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return "", internalError("enqueue job", err)
	}

	d.metrics.jobEnqueued(in.Channel)
	slog.Info("job enqueued", "job_id", id, "owner", job.OwnerID, "channel", job.Channel)
	return id, nil
}

// DispatchBulk enqueues one job per recipient concurrently. A failed enqueue
// is counted and logged but never aborts the rest of the batch.
func (d *Dispatcher) DispatchBulk(ctx context.Context, in JobSpec, recipients []string) BulkResult {
	ids := make([]string, len(recipients))

	var (
		mu     sync.Mutex
		failed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, to := range recipients {
		g.Go(func() error {
			id, err := d.Dispatch(gctx, in, to)
			if err != nil {
				slog.Error("bulk enqueue failed", "recipient", to, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			ids[i] = id
			return nil
		})
	}
	_ = g.Wait()

	res := BulkResult{Failed: failed, Jobs: make([]BulkJob, 0, len(recipients))}
	for i, id := range ids {
		if id == "" {
			continue
		}
		res.Jobs = append(res.Jobs, BulkJob{JobID: id, Recipient: recipients[i], Status: string(model.JobStateQueued)})
	}
	res.Queued = len(res.Jobs)
	return res
}
