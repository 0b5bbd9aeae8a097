package model

import "time"

// Job is one queued unit of delivery work. ID is assigned at creation, never
// reused, and doubles as the idempotency key for side effects on redelivery.
type Job struct {
	ID           string
	OwnerID      string
	CredentialID string
	Channel      Channel
	Recipient    string
	Subject      string
	Payload      string
	TemplateID   string
	AttemptCount int
	MaxAttempts  int
	State        JobState
	RunAt        time.Time
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
}

// AttemptsLeft reports whether another attempt is allowed after the current one.
func (j Job) AttemptsLeft() bool {
	return j.AttemptCount < j.MaxAttempts
}

// QueueStats summarizes how many jobs sit in each state.
type QueueStats struct {
	Waiting   int64
	Active    int64
	Completed int64
	Failed    int64
}

// RetentionPolicy bounds how many finished jobs the queue keeps for inspection.
// Zero values disable the corresponding cap.
type RetentionPolicy struct {
	CompletedCount  int
	CompletedMaxAge time.Duration
	FailedCount     int
}
