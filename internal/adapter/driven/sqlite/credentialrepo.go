package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Only bcrypt hashes of secret bodies are stored.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

const credentialColumns = `id, owner_id, name, lookup_prefix, hashed_secret, is_revoked, usage_count, last_used_at, created_at`

// Create stores a new credential.
func (r *CredentialRepo) Create(ctx context.Context, cred model.Credential) error {
	const query = `INSERT INTO credentials (` + credentialColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		cred.ID,
		cred.OwnerID,
		cred.Name,
		cred.LookupPrefix,
		cred.HashedSecret,
		cred.IsRevoked,
		cred.UsageCount,
		nullableTime(cred.LastUsedAt),
		formatTime(cred.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return driven.ErrCredentialExists
		}
		return fmt.Errorf("create credential %s: %w", cred.ID, err)
	}
	return nil
}

// GetByID returns the credential or (nil, nil) when it does not exist.
func (r *CredentialRepo) GetByID(ctx context.Context, id string) (*model.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s: %w", id, err)
	}
	return cred, nil
}

// ListActive returns every non-revoked credential ordered by creation time.
func (r *CredentialRepo) ListActive(ctx context.Context) ([]model.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credentials WHERE is_revoked = 0 ORDER BY created_at`
	return r.list(ctx, query)
}

// ListActiveByPrefix returns non-revoked credentials sharing a lookup prefix.
func (r *CredentialRepo) ListActiveByPrefix(ctx context.Context, prefix string) ([]model.Credential, error) {
	const query = `SELECT ` + credentialColumns + ` FROM credentials WHERE is_revoked = 0 AND lookup_prefix = ? ORDER BY created_at`
	return r.list(ctx, query, prefix)
}

// Revoke flags the credential as revoked. Revoking twice is not an error.
func (r *CredentialRepo) Revoke(ctx context.Context, id string) error {
	const query = `UPDATE credentials SET is_revoked = 1 WHERE id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("revoke credential %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke credential %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return driven.ErrCredentialNotFound
	}
	return nil
}

func (r *CredentialRepo) list(ctx context.Context, query string, args ...any) ([]model.Credential, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

func scanCredential(s scanner) (*model.Credential, error) {
	var (
		cred       model.Credential
		lastUsedAt sql.NullString
		createdAt  string
	)
	err := s.Scan(
		&cred.ID,
		&cred.OwnerID,
		&cred.Name,
		&cred.LookupPrefix,
		&cred.HashedSecret,
		&cred.IsRevoked,
		&cred.UsageCount,
		&lastUsedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	cred.LastUsedAt, err = parseNullTime(lastUsedAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_used_at: %w", err)
	}
	cred.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &cred, nil
}

// isUniqueViolation reports whether err is a SQLite primary key or unique
// constraint failure.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
