package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// Sentinel errors returned by CredentialStore implementations.
var (
	// ErrCredentialNotFound indicates no credential has the requested id.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialExists indicates a credential with the same id already exists.
	ErrCredentialExists = errors.New("credential already exists")
)

// CredentialStore defines the driven port for hashed credential persistence.
// Secrets never cross this boundary in plaintext; only bcrypt hashes do.
type CredentialStore interface {
	// Create stores a new credential. Returns ErrCredentialExists on id collision.
	Create(ctx context.Context, cred model.Credential) error

	// GetByID returns the credential or (nil, nil) if it does not exist.
	GetByID(ctx context.Context, id string) (*model.Credential, error)

	// ListActive returns every non-revoked credential.
	ListActive(ctx context.Context) ([]model.Credential, error)

	// ListActiveByPrefix returns non-revoked credentials whose lookup prefix
	// equals prefix.
	ListActiveByPrefix(ctx context.Context, prefix string) ([]model.Credential, error)

	// Revoke sets the revocation flag. Returns ErrCredentialNotFound if missing.
	Revoke(ctx context.Context, id string) error
}
