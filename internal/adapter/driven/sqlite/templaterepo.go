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

var _ driven.TemplateStore = (*TemplateRepo)(nil)

// TemplateRepo reads templates from the local read model. Template CRUD
// belongs to another service; Save exists for seeding and tests.
type TemplateRepo struct {
	db *DB
}

// NewTemplateRepo creates a new TemplateRepo.
func NewTemplateRepo(db *DB) *TemplateRepo {
	return &TemplateRepo{db: db}
}

// GetByID returns the template or (nil, nil) if it does not exist.
func (r *TemplateRepo) GetByID(ctx context.Context, id string) (*model.Template, error) {
	const query = `SELECT id, slug, owner_id, content, format, is_public FROM templates WHERE id = ?`

	tpl, err := scanTemplate(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return tpl, nil
}

// GetBySlug prefers the caller's own template, then any template with slug.
func (r *TemplateRepo) GetBySlug(ctx context.Context, slug, ownerID string) (*model.Template, error) {
	const query = `
		SELECT id, slug, owner_id, content, format, is_public FROM templates
		WHERE slug = ?
		ORDER BY (owner_id = ?) DESC, is_public DESC, created_at
		LIMIT 1`

	tpl, err := scanTemplate(r.db.Reader.QueryRowContext(ctx, query, slug, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template by slug %s: %w", slug, err)
	}
	return tpl, nil
}

// Save inserts or replaces a template.
func (r *TemplateRepo) Save(ctx context.Context, tpl model.Template) error {
	const query = `
		INSERT INTO templates (id, slug, owner_id, content, format, is_public, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			slug = excluded.slug,
			owner_id = excluded.owner_id,
			content = excluded.content,
			format = excluded.format,
			is_public = excluded.is_public`

	format := tpl.Format
	if format == "" {
		format = model.FormatHTML
	}
	_, err := r.db.Writer.ExecContext(ctx, query, tpl.ID, tpl.Slug, tpl.OwnerID, tpl.Content, string(format), tpl.IsPublic, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save template %s: %w", tpl.ID, err)
	}
	return nil
}

func scanTemplate(s scanner) (*model.Template, error) {
	var (
		tpl    model.Template
		format string
	)
	if err := s.Scan(&tpl.ID, &tpl.Slug, &tpl.OwnerID, &tpl.Content, &format, &tpl.IsPublic); err != nil {
		return nil, err
	}
	tpl.Format = model.TemplateFormat(format)
	return &tpl, nil
}
