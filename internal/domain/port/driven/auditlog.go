package driven

import (
	"context"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// AuditLog defines the driven port for the append-only delivery audit trail.
type AuditLog interface {
	Append(ctx context.Context, rec model.AuditRecord) error
	ListByJob(ctx context.Context, jobID string) ([]model.AuditRecord, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]model.AuditRecord, error)
}
