package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

var _ driven.UsageLedger = (*UsageLedger)(nil)

// UsageLedger applies per-delivery usage in a single transaction, recording
// the job id so a redelivered job is never counted twice.
type UsageLedger struct {
	db *DB
}

// NewUsageLedger creates a new UsageLedger.
func NewUsageLedger(db *DB) *UsageLedger {
	return &UsageLedger{db: db}
}

// ApplyDelivery bumps credential usage and the owner's quota for d.
func (l *UsageLedger) ApplyDelivery(ctx context.Context, d driven.Delivery) (driven.LedgerResult, error) {
	var result driven.LedgerResult
	at := formatTime(d.At)

	err := l.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO usage_applied (job_id, applied_at) VALUES (?, ?)`, d.JobID, at)
		if err != nil {
			return fmt.Errorf("mark usage applied for job %s: %w", d.JobID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		result.Applied = true

		if d.CredentialID != "" {
			const credQuery = `UPDATE credentials SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`
			if _, err := tx.ExecContext(ctx, credQuery, at, d.CredentialID); err != nil {
				return fmt.Errorf("bump credential usage %s: %w", d.CredentialID, err)
			}
		}

		// The ceiling guard keeps used_limit <= allowed_limit even when
		// concurrent admissions raced past the same remaining budget.
		const quotaQuery = `
			UPDATE usage_quotas SET used_limit = used_limit + 1
			WHERE owner_id = ? AND channel = ? AND (allowed_limit = -1 OR used_limit < allowed_limit)`
		res, err = tx.ExecContext(ctx, quotaQuery, d.OwnerID, string(d.Channel))
		if err != nil {
			return fmt.Errorf("bump quota %s/%s: %w", d.OwnerID, d.Channel, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result.Clamped = true
		}
		return nil
	})
	if err != nil {
		return driven.LedgerResult{}, err
	}
	return result, nil
}
