package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

var _ driven.CounterStore = (*CounterRepo)(nil)

// CounterRepo is the SQLite implementation of the CounterStore port. Because
// every notipi process on a host opens the same database file, windows and
// markers kept here are shared between ingress and worker processes.
type CounterRepo struct {
	db *DB
}

// NewCounterRepo creates a new CounterRepo.
func NewCounterRepo(db *DB) *CounterRepo {
	return &CounterRepo{db: db}
}

// Hit records a request in the sliding window for key when it is under limit.
func (r *CounterRepo) Hit(ctx context.Context, key string, window time.Duration, limit int, now time.Time) (driven.HitResult, error) {
	var result driven.HitResult
	cutoff := now.Add(-window).UnixNano()

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rate_hits WHERE key = ? AND at <= ?`, key, cutoff); err != nil {
			return fmt.Errorf("prune window %s: %w", key, err)
		}

		var (
			count  int
			oldest sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*), MIN(at) FROM rate_hits WHERE key = ?`, key).Scan(&count, &oldest)
		if err != nil {
			return fmt.Errorf("count window %s: %w", key, err)
		}

		if count >= limit {
			result = driven.HitResult{Count: count, Admitted: false}
			if oldest.Valid {
				result.Oldest = time.Unix(0, oldest.Int64)
			}
			return nil
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO rate_hits (key, at) VALUES (?, ?)`, key, now.UnixNano()); err != nil {
			return fmt.Errorf("record hit %s: %w", key, err)
		}

		result = driven.HitResult{Count: count + 1, Admitted: true, Oldest: now}
		if oldest.Valid {
			result.Oldest = time.Unix(0, oldest.Int64)
		}
		return nil
	})
	if err != nil {
		return driven.HitResult{}, err
	}
	return result, nil
}

// Get returns the live value of key, or 0 when missing or expired.
func (r *CounterRepo) Get(ctx context.Context, key string, now time.Time) (int64, error) {
	const query = `SELECT value FROM counters WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`

	var value int64
	err := r.db.Reader.QueryRowContext(ctx, query, key, now.UnixNano()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %s: %w", key, err)
	}
	return value, nil
}

// CompareAndSet swaps key from oldVal to newVal. An expired counter compares as 0.
func (r *CounterRepo) CompareAndSet(ctx context.Context, key string, oldVal, newVal int64, ttl time.Duration, now time.Time) (bool, error) {
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixNano()
	}
	nowNano := now.UnixNano()

	var swapped bool
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		const update = `
			UPDATE counters SET value = ?, expires_at = ?
			WHERE key = ?
			  AND (CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN 0 ELSE value END) = ?`

		res, err := tx.ExecContext(ctx, update, newVal, expiresAt, key, nowNano, oldVal)
		if err != nil {
			return fmt.Errorf("cas counter %s: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("cas counter %s: rows affected: %w", key, err)
		}
		if n == 1 {
			swapped = true
			return nil
		}
		if oldVal != 0 {
			return nil
		}

		res, err = tx.ExecContext(ctx, `INSERT OR IGNORE INTO counters (key, value, expires_at) VALUES (?, ?, ?)`, key, newVal, expiresAt)
		if err != nil {
			return fmt.Errorf("insert counter %s: %w", key, err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert counter %s: rows affected: %w", key, err)
		}
		swapped = n == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// Prune deletes expired counters and window hits older than maxWindow.
func (r *CounterRepo) Prune(ctx context.Context, maxWindow time.Duration, now time.Time) (int64, error) {
	var total int64
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM counters WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UnixNano())
		if err != nil {
			return fmt.Errorf("prune counters: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n

		res, err = tx.ExecContext(ctx, `DELETE FROM rate_hits WHERE at <= ?`, now.Add(-maxWindow).UnixNano())
		if err != nil {
			return fmt.Errorf("prune rate hits: %w", err)
		}
		n, _ = res.RowsAffected()
		total += n
		return nil
	})
	return total, err
}
