package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// Delivery identifies one successful delivery whose usage must be applied.
type Delivery struct {
	JobID        string
	OwnerID      string
	CredentialID string
	Channel      model.Channel
	At           time.Time
}

// LedgerResult reports what ApplyDelivery changed.
type LedgerResult struct {
	// Applied is false when usage for this job id had already been recorded.
	Applied bool
	// Clamped is true when the quota was already at its ceiling and UsedLimit
	// was left unchanged.
	Clamped bool
}

// UsageLedger applies usage side effects of a successful delivery exactly once
// per job id.
type UsageLedger interface {
	// ApplyDelivery increments the credential usage counter and last-used time
	// (skipped for session callers with no credential) and the owner's quota
	// UsedLimit, never past a finite AllowedLimit.
	ApplyDelivery(ctx context.Context, d Delivery) (LedgerResult, error)
}
