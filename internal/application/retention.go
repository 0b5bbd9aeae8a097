package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// RetentionService periodically prunes finished jobs and expired counters so
// neither table grows without bound.
type RetentionService struct {
	queue     driven.JobQueue
	counters  driven.CounterStore
	policy    QueuePolicy
	maxWindow time.Duration
	schedule  string
	metrics   *Metrics
	c         *cron.Cron
	now       func() time.Time
}

// NewRetentionService creates a RetentionService that runs on schedule, a
// cron expression such as "@every 1m". maxWindow is the longest rate window in use.
func NewRetentionService(queue driven.JobQueue, counters driven.CounterStore, policy QueuePolicy, maxWindow time.Duration, schedule string, metrics *Metrics) *RetentionService {
	return &RetentionService{
		queue:     queue,
		counters:  counters,
		policy:    policy,
		maxWindow: maxWindow,
		schedule:  schedule,
		metrics:   metrics,
		c:         cron.New(),
		now:       time.Now,
	}
}

// Start schedules the sweep and starts the cron runner.
func (s *RetentionService) Start(ctx context.Context) error {
	_, err := s.c.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			slog.Error("retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule retention sweep %q: %w", s.schedule, err)
	}
	s.c.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to return.
func (s *RetentionService) Stop() {
	<-s.c.Stop().Done()
}

// Sweep runs one pruning pass.
func (s *RetentionService) Sweep(ctx context.Context) error {
	now := s.now()

	jobs, err := s.queue.Prune(ctx, s.policy.Retention, now)
	if err != nil {
		return fmt.Errorf("prune jobs: %w", err)
	}
	counters, err := s.counters.Prune(ctx, s.maxWindow, now)
	if err != nil {
		return fmt.Errorf("prune counters: %w", err)
	}

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return fmt.Errorf("queue stats: %w", err)
	}
	s.metrics.queueStats(stats, jobs)

	if jobs > 0 || counters > 0 {
		slog.Info("retention sweep", "jobs_pruned", jobs, "counters_pruned", counters)
	}
	return nil
}
