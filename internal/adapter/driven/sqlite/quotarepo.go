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

var (
	_ driven.QuotaStore = (*QuotaRepo)(nil)
	_ driven.OwnerStore = (*OwnerRepo)(nil)
)

// QuotaRepo is the SQLite implementation of the QuotaStore port.
type QuotaRepo struct {
	db *DB
}

// NewQuotaRepo creates a new QuotaRepo.
func NewQuotaRepo(db *DB) *QuotaRepo {
	return &QuotaRepo{db: db}
}

// Get returns the quota for (ownerID, channel) or (nil, nil) if not provisioned.
func (r *QuotaRepo) Get(ctx context.Context, ownerID string, channel model.Channel) (*model.UsageQuota, error) {
	return r.get(ctx, r.db.Reader, ownerID, channel)
}

// Provision inserts q if no row exists yet and returns the stored row. A
// concurrent provision of the same pair keeps whichever insert landed first.
func (r *QuotaRepo) Provision(ctx context.Context, q model.UsageQuota) (*model.UsageQuota, error) {
	const query = `INSERT OR IGNORE INTO usage_quotas (owner_id, channel, allowed_limit, used_limit) VALUES (?, ?, ?, ?)`

	if _, err := r.db.Writer.ExecContext(ctx, query, q.OwnerID, string(q.Channel), q.AllowedLimit, q.UsedLimit); err != nil {
		return nil, fmt.Errorf("provision quota %s/%s: %w", q.OwnerID, q.Channel, err)
	}

	stored, err := r.get(ctx, r.db.Writer, q.OwnerID, q.Channel)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("provision quota %s/%s: row missing after insert", q.OwnerID, q.Channel)
	}
	return stored, nil
}

// ListByOwner returns the owner's quotas ordered by channel.
func (r *QuotaRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.UsageQuota, error) {
	const query = `SELECT owner_id, channel, allowed_limit, used_limit FROM usage_quotas WHERE owner_id = ? ORDER BY channel`

	rows, err := r.db.Reader.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list quotas for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var quotas []model.UsageQuota
	for rows.Next() {
		q, err := scanQuota(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quota: %w", err)
		}
		quotas = append(quotas, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotas: %w", err)
	}
	return quotas, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *QuotaRepo) get(ctx context.Context, q queryRower, ownerID string, channel model.Channel) (*model.UsageQuota, error) {
	const query = `SELECT owner_id, channel, allowed_limit, used_limit FROM usage_quotas WHERE owner_id = ? AND channel = ?`

	quota, err := scanQuota(q.QueryRowContext(ctx, query, ownerID, string(channel)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quota %s/%s: %w", ownerID, channel, err)
	}
	return quota, nil
}

func scanQuota(s scanner) (*model.UsageQuota, error) {
	var (
		q       model.UsageQuota
		channel string
	)
	if err := s.Scan(&q.OwnerID, &channel, &q.AllowedLimit, &q.UsedLimit); err != nil {
		return nil, err
	}
	q.Channel = model.Channel(channel)
	return &q, nil
}

// OwnerRepo is the SQLite implementation of the OwnerStore port.
type OwnerRepo struct {
	db *DB
}

// NewOwnerRepo creates a new OwnerRepo.
func NewOwnerRepo(db *DB) *OwnerRepo {
	return &OwnerRepo{db: db}
}

// Upsert creates the owner or updates its plan tier.
func (r *OwnerRepo) Upsert(ctx context.Context, owner model.Owner) error {
	const query = `
		INSERT INTO owners (id, plan, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET plan = excluded.plan`

	createdAt := owner.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	if _, err := r.db.Writer.ExecContext(ctx, query, owner.ID, string(owner.Plan), formatTime(createdAt)); err != nil {
		return fmt.Errorf("upsert owner %s: %w", owner.ID, err)
	}
	return nil
}

// Get returns the owner or (nil, nil) if unknown.
func (r *OwnerRepo) Get(ctx context.Context, id string) (*model.Owner, error) {
	const query = `SELECT id, plan, created_at FROM owners WHERE id = ?`

	var (
		owner     model.Owner
		plan      string
		createdAt string
	)
	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&owner.ID, &plan, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owner %s: %w", id, err)
	}

	owner.Plan = model.ParsePlan(plan)
	owner.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for owner %s: %w", id, err)
	}
	return &owner, nil
}
