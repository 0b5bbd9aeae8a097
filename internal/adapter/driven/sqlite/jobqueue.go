package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

var _ driven.JobQueue = (*JobQueue)(nil)

// JobQueue is the durable work queue backed by the jobs table. Claims are a
// single UPDATE ... RETURNING so two workers, in this process or another,
// never lease the same job at once.
type JobQueue struct {
	db *DB
}

// NewJobQueue creates a new JobQueue.
func NewJobQueue(db *DB) *JobQueue {
	return &JobQueue{db: db}
}

const jobColumns = `id, owner_id, credential_id, channel, recipient, subject, payload, template_id,
	state, attempt_count, max_attempts, run_at, last_error, created_at, updated_at, finished_at`

// Enqueue inserts job in the queued state.
func (q *JobQueue) Enqueue(ctx context.Context, job model.Job) error {
	const query = `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.RunAt.IsZero() {
		job.RunAt = job.CreatedAt
	}

	_, err := q.db.Writer.ExecContext(ctx, query,
		job.ID,
		job.OwnerID,
		job.CredentialID,
		string(job.Channel),
		job.Recipient,
		job.Subject,
		job.Payload,
		job.TemplateID,
		string(model.JobStateQueued),
		0,
		job.MaxAttempts,
		formatTime(job.RunAt),
		"",
		formatTime(job.CreatedAt),
		formatTime(job.CreatedAt),
		nil,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return driven.ErrJobExists
		}
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

// Claim leases the next runnable job, oldest RunAt first.
func (q *JobQueue) Claim(ctx context.Context, now time.Time, lease time.Duration) (*model.Job, error) {
	const query = `
		UPDATE jobs
		SET state = 'active', attempt_count = attempt_count + 1, locked_until = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE (state = 'queued' AND run_at <= ?)
			   OR (state = 'active' AND locked_until < ?)
			ORDER BY run_at, created_at
			LIMIT 1
		)
		RETURNING ` + jobColumns

	ts := formatTime(now)
	job, err := scanJob(q.db.Writer.QueryRowContext(ctx, query, formatTime(now.Add(lease)), ts, ts, ts))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete marks an active job completed.
func (q *JobQueue) Complete(ctx context.Context, id string, now time.Time) error {
	const query = `
		UPDATE jobs SET state = 'completed', locked_until = NULL, last_error = '', updated_at = ?, finished_at = ?
		WHERE id = ? AND state = 'active'`
	ts := formatTime(now)
	return q.transition(ctx, "complete", id, query, ts, ts, id)
}

// Retry puts an active job back in the queue, runnable at runAt.
func (q *JobQueue) Retry(ctx context.Context, id string, runAt time.Time, lastErr string, now time.Time) error {
	const query = `
		UPDATE jobs SET state = 'queued', locked_until = NULL, run_at = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND state = 'active'`
	return q.transition(ctx, "retry", id, query, formatTime(runAt), lastErr, formatTime(now), id)
}

// Fail marks an active job terminally failed.
func (q *JobQueue) Fail(ctx context.Context, id string, lastErr string, now time.Time) error {
	const query = `
		UPDATE jobs SET state = 'failed', locked_until = NULL, last_error = ?, updated_at = ?, finished_at = ?
		WHERE id = ? AND state = 'active'`
	ts := formatTime(now)
	return q.transition(ctx, "fail", id, query, lastErr, ts, ts, id)
}

func (q *JobQueue) transition(ctx context.Context, op, id, query string, args ...any) error {
	res, err := q.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s job %s: %w", op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s job %s: rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s job %s: %w", op, id, driven.ErrJobNotFound)
	}
	return nil
}

// Get returns the job or ErrJobNotFound.
func (q *JobQueue) Get(ctx context.Context, id string) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(q.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// Stats counts jobs per state.
func (q *JobQueue) Stats(ctx context.Context) (model.QueueStats, error) {
	const query = `SELECT state, COUNT(*) FROM jobs GROUP BY state`

	rows, err := q.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return model.QueueStats{}, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	var stats model.QueueStats
	for rows.Next() {
		var (
			state string
			count int64
		)
		if err := rows.Scan(&state, &count); err != nil {
			return model.QueueStats{}, fmt.Errorf("scan queue stats: %w", err)
		}
		switch model.JobState(state) {
		case model.JobStateQueued:
			stats.Waiting = count
		case model.JobStateActive:
			stats.Active = count
		case model.JobStateCompleted:
			stats.Completed = count
		case model.JobStateFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return model.QueueStats{}, fmt.Errorf("iterate queue stats: %w", err)
	}
	return stats, nil
}

// Prune deletes completed jobs older than the age cap or beyond the count cap,
// and failed jobs beyond their count cap. The newest finished jobs are kept.
func (q *JobQueue) Prune(ctx context.Context, policy model.RetentionPolicy, now time.Time) (int64, error) {
	var total int64

	err := q.db.withTx(ctx, func(tx *sql.Tx) error {
		if policy.CompletedMaxAge > 0 {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM jobs WHERE state = 'completed' AND finished_at < ?`,
				formatTime(now.Add(-policy.CompletedMaxAge)))
			if err != nil {
				return fmt.Errorf("prune completed by age: %w", err)
			}
			n, _ := res.RowsAffected()
			total += n
		}

		caps := []struct {
			state model.JobState
			keep  int
		}{
			{model.JobStateCompleted, policy.CompletedCount},
			{model.JobStateFailed, policy.FailedCount},
		}
		for _, c := range caps {
			if c.keep <= 0 {
				continue
			}
			const query = `
				DELETE FROM jobs WHERE state = ? AND id NOT IN (
					SELECT id FROM jobs WHERE state = ? ORDER BY finished_at DESC, id DESC LIMIT ?
				)`
			res, err := tx.ExecContext(ctx, query, string(c.state), string(c.state), c.keep)
			if err != nil {
				return fmt.Errorf("prune %s by count: %w", c.state, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func scanJob(s scanner) (*model.Job, error) {
	var (
		job        model.Job
		channel    string
		state      string
		runAt      string
		createdAt  string
		updatedAt  string
		finishedAt sql.NullString
	)
	err := s.Scan(
		&job.ID,
		&job.OwnerID,
		&job.CredentialID,
		&channel,
		&job.Recipient,
		&job.Subject,
		&job.Payload,
		&job.TemplateID,
		&state,
		&job.AttemptCount,
		&job.MaxAttempts,
		&runAt,
		&job.LastError,
		&createdAt,
		&updatedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Channel = model.Channel(channel)
	job.State = model.JobState(state)

	if job.RunAt, err = parseTime(runAt); err != nil {
		return nil, fmt.Errorf("parse run_at: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if job.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &job, nil
}
