package driven

import (
	"context"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// TemplateStore defines the read-only driven port for message templates.
type TemplateStore interface {
	// GetByID returns the template or (nil, nil) if it does not exist.
	GetByID(ctx context.Context, id string) (*model.Template, error)

	// GetBySlug returns the template with slug, preferring one owned by
	// ownerID over a foreign one. Returns (nil, nil) if none exists.
	GetBySlug(ctx context.Context, slug, ownerID string) (*model.Template, error)
}
