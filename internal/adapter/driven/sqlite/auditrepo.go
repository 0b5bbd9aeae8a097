package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

var _ driven.AuditLog = (*AuditRepo)(nil)

// AuditRepo is the append-only SQLite audit trail of delivery attempts.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

const auditColumns = `id, owner_id, credential_id, channel, outcome, job_id, attempt, metadata, created_at`

// Append writes one attempt outcome.
func (r *AuditRepo) Append(ctx context.Context, rec model.AuditRecord) error {
	const query = `
		INSERT INTO audit_records (owner_id, credential_id, channel, outcome, job_id, attempt, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	meta := rec.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode audit metadata for job %s: %w", rec.JobID, err)
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		rec.OwnerID,
		rec.CredentialID,
		string(rec.Channel),
		string(rec.Outcome),
		rec.JobID,
		rec.Attempt,
		string(encoded),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append audit record for job %s: %w", rec.JobID, err)
	}
	return nil
}

// ListByJob returns every attempt recorded for jobID, oldest first.
func (r *AuditRepo) ListByJob(ctx context.Context, jobID string) ([]model.AuditRecord, error) {
	const query = `SELECT ` + auditColumns + ` FROM audit_records WHERE job_id = ? ORDER BY id`
	return r.list(ctx, query, jobID)
}

// ListByOwner returns the owner's most recent records, newest first.
func (r *AuditRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.AuditRecord, error) {
	const query = `SELECT ` + auditColumns + ` FROM audit_records WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, query, ownerID, limit)
}

func (r *AuditRepo) list(ctx context.Context, query string, args ...any) ([]model.AuditRecord, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var (
			rec       model.AuditRecord
			channel   string
			outcome   string
			metadata  string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.CredentialID, &channel, &outcome, &rec.JobID, &rec.Attempt, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Channel = model.Channel(channel)
		rec.Outcome = model.Outcome(outcome)
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode audit metadata %d: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for audit record %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
