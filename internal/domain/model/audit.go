package model

import "time"

// AuditRecord is the immutable outcome of one delivery attempt. Only the worker
// pool writes these; reporting reads them elsewhere.
type AuditRecord struct {
	ID           int64
	OwnerID      string
	CredentialID string
	Channel      Channel
	Outcome      Outcome
	JobID        string
	Attempt      int
	Metadata     map[string]string
	CreatedAt    time.Time
}
