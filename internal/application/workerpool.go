package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Concurrency  int
	Lease        time.Duration
	PollInterval time.Duration
	DrainTimeout time.Duration
	// SendRate caps sender calls per second for each channel; 0 disables.
	SendRate  float64
	SendBurst int
	// MarkerTTL is how long a "sent" idempotency marker outlives delivery.
	MarkerTTL time.Duration
}

// DefaultWorkerConfig returns five workers with a one minute lease.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  5,
		Lease:        time.Minute,
		PollInterval: 500 * time.Millisecond,
		DrainTimeout: 30 * time.Second,
		SendBurst:    1,
		MarkerTTL:    48 * time.Hour,
	}
}

// WorkerPool claims jobs, hands them to the channel sender, and records the
// outcome in the usage ledger and audit log. Each job is processed
// at-least-once; the sent marker and the ledger keep a redelivered job from
// sending or counting twice.
type WorkerPool struct {
	queue    driven.JobQueue
	sender   driven.ChannelSender
	ledger   driven.UsageLedger
	audit    driven.AuditLog
	counters driven.CounterStore
	policy   QueuePolicy
	cfg      WorkerConfig
	metrics  *Metrics
	limiters map[model.Channel]*rate.Limiter
	now      func() time.Time
}

// NewWorkerPool creates a WorkerPool.
func NewWorkerPool(
	queue driven.JobQueue,
	sender driven.ChannelSender,
	ledger driven.UsageLedger,
	audit driven.AuditLog,
	counters driven.CounterStore,
	policy QueuePolicy,
	cfg WorkerConfig,
	metrics *Metrics,
) *WorkerPool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 1
	}

	limiters := make(map[model.Channel]*rate.Limiter, len(model.Channels()))
	for _, ch := range model.Channels() {
		limit := rate.Inf
		if cfg.SendRate > 0 {
			limit = rate.Limit(cfg.SendRate)
		}
		limiters[ch] = rate.NewLimiter(limit, cfg.SendBurst)
	}

	return &WorkerPool{
		queue:    queue,
		sender:   sender,
		ledger:   ledger,
		audit:    audit,
		counters: counters,
		policy:   policy,
		cfg:      cfg,
		metrics:  metrics,
		limiters: limiters,
		now:      time.Now,
	}
}

// Run starts the workers and blocks until ctx is canceled and every in-flight
// job has finished. Deliveries still running DrainTimeout after cancellation
// have their context canceled; their lease later expires and the job is
// reclaimed.
func (p *WorkerPool) Run(ctx context.Context) {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	drained := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-drained:
			return
		}
		timer := time.NewTimer(p.cfg.DrainTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			slog.Warn("worker drain timeout reached, canceling in-flight deliveries")
			cancelWork()
		case <-drained:
		}
	}()

	slog.Info("worker pool started", "concurrency", p.cfg.Concurrency)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.loop(ctx, workCtx, worker)
		}(i)
	}
	wg.Wait()
	close(drained)

	slog.Info("worker pool stopped")
}

func (p *WorkerPool) loop(ctx, workCtx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := p.ProcessNext(workCtx)
		if err != nil {
			slog.Error("worker iteration failed", "worker", worker, "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// ProcessNext claims and processes at most one job. It reports whether a job
// was claimed.
func (p *WorkerPool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.queue.Claim(ctx, p.now(), p.cfg.Lease)
	if errors.Is(err, driven.ErrQueueEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}

	return true, p.process(ctx, job)
}

func (p *WorkerPool) process(ctx context.Context, job *model.Job) error {
	log := slog.With("job_id", job.ID, "channel", job.Channel, "attempt", job.AttemptCount)

	// The marker is read first: a job delivered on its last attempt whose
	// worker died before completing must still be charged and completed.
	markerKey := "sent:" + job.ID
	marked, err := p.counters.Get(ctx, markerKey, p.now())
	if err != nil {
		return fmt.Errorf("read sent marker: %w", err)
	}
	if marked != 0 {
		log.Info("job already delivered, skipping sender")
		return p.handleSuccess(ctx, log, job)
	}

	// A lease that expired after the final attempt leaves nothing to retry.
	if job.AttemptCount > job.MaxAttempts {
		const reason = "attempts exhausted after lease expiry"
		p.appendFailureAudit(ctx, log, job, reason)
		log.Error("job failed permanently", "error", reason)
		if err := p.queue.Fail(ctx, job.ID, reason, p.now()); err != nil {
			return fmt.Errorf("fail job %s: %w", job.ID, err)
		}
		return nil
	}

	start := p.now()
	sendErr := p.send(ctx, job)
	p.metrics.attempt(job.Channel, outcomeOf(sendErr), p.now().Sub(start))
	if sendErr != nil {
		return p.handleFailure(ctx, log, job, sendErr)
	}
	if _, err := p.counters.CompareAndSet(ctx, markerKey, 0, 1, p.cfg.MarkerTTL, p.now()); err != nil {
		log.Error("failed to mark job as sent", "error", err)
	}

	return p.handleSuccess(ctx, log, job)
}

// send invokes the sender, converting a panic into a delivery error.
func (p *WorkerPool) send(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()

	if lim, ok := p.limiters[job.Channel]; ok {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("send throttle: %w", err)
		}
	}

	return p.sender.Send(ctx, driven.Message{
		JobID:     job.ID,
		Channel:   job.Channel,
		Recipient: job.Recipient,
		Subject:   job.Subject,
		Body:      job.Payload,
	})
}

func (p *WorkerPool) handleSuccess(ctx context.Context, log *slog.Logger, job *model.Job) error {
	now := p.now()

	res, err := p.ledger.ApplyDelivery(ctx, driven.Delivery{
		JobID:        job.ID,
		OwnerID:      job.OwnerID,
		CredentialID: job.CredentialID,
		Channel:      job.Channel,
		At:           now,
	})
	if err != nil {
		return fmt.Errorf("apply usage for job %s: %w", job.ID, err)
	}
	if res.Clamped {
		log.Warn("quota ceiling reached, usage not incremented", "owner", job.OwnerID)
	}

	if err := p.audit.Append(ctx, model.AuditRecord{
		OwnerID:      job.OwnerID,
		CredentialID: job.CredentialID,
		Channel:      job.Channel,
		Outcome:      model.OutcomeSuccess,
		JobID:        job.ID,
		Attempt:      job.AttemptCount,
		Metadata:     map[string]string{"recipient": job.Recipient},
		CreatedAt:    now,
	}); err != nil {
		log.Error("failed to append success audit record", "error", err)
	}

	if err := p.queue.Complete(ctx, job.ID, now); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	log.Info("job delivered")
	return nil
}

func (p *WorkerPool) handleFailure(ctx context.Context, log *slog.Logger, job *model.Job, sendErr error) error {
	now := p.now()
	permanent := errors.Is(sendErr, driven.ErrPermanent)

	p.appendFailureAudit(ctx, log, job, sendErr.Error())

	if permanent || !job.AttemptsLeft() {
		log.Error("job failed permanently", "error", sendErr, "permanent", permanent)
		if err := p.queue.Fail(ctx, job.ID, sendErr.Error(), now); err != nil {
			return fmt.Errorf("fail job %s: %w", job.ID, err)
		}
		return nil
	}

	delay := p.policy.RetryDelay(job.AttemptCount)
	log.Warn("delivery failed, retrying", "error", sendErr, "retry_in", delay)
	if err := p.queue.Retry(ctx, job.ID, now.Add(delay), sendErr.Error(), now); err != nil {
		return fmt.Errorf("retry job %s: %w", job.ID, err)
	}
	return nil
}

func (p *WorkerPool) appendFailureAudit(ctx context.Context, log *slog.Logger, job *model.Job, reason string) {
	if err := p.audit.Append(ctx, model.AuditRecord{
		OwnerID:      job.OwnerID,
		CredentialID: job.CredentialID,
		Channel:      job.Channel,
		Outcome:      model.OutcomeFailure,
		JobID:        job.ID,
		Attempt:      job.AttemptCount,
		Metadata:     map[string]string{"recipient": job.Recipient, "error": reason},
		CreatedAt:    p.now(),
	}); err != nil {
		log.Error("failed to append failure audit record", "error", err)
	}
}

func outcomeOf(err error) model.Outcome {
	if err != nil {
		return model.OutcomeFailure
	}
	return model.OutcomeSuccess
}
