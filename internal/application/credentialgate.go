package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

const (
	secretNamespace = "notipi"
	secretBodyLen   = 32
	lookupPrefixLen = 8

	// SecretHashCost is the bcrypt cost used for newly minted secrets.
	SecretHashCost = 10
)

// LookupMode selects how the gate narrows candidate credentials before the
// bcrypt comparison.
type LookupMode string

const (
	// LookupScan compares against every non-revoked credential.
	LookupScan LookupMode = "scan"
	// LookupPrefix compares only against credentials sharing the body prefix.
	LookupPrefix LookupMode = "prefix"
)

// Caller-facing messages. Unmatched and revoked secrets share one message.
const (
	msgMissingCredential = "API key is missing. Please provide x-api-key header"
	msgMalformedSecret   = "Invalid API key format"
	msgRejectedSecret    = "Invalid or revoked API key"
)

// Credentials is what a request presented: an API key, a session bearer
// token, or neither.
type Credentials struct {
	APIKey      string
	BearerToken string
}

// CredentialGate resolves presented credentials to a caller identity. It never
// mutates state; usage is recorded later by the worker pool.
type CredentialGate struct {
	store    driven.CredentialStore
	sessions *SessionVerifier
	mode     LookupMode
}

// NewCredentialGate creates a gate. sessions may be nil, in which case bearer
// tokens are rejected.
func NewCredentialGate(store driven.CredentialStore, sessions *SessionVerifier, mode LookupMode) *CredentialGate {
	if mode != LookupPrefix {
		mode = LookupScan
	}
	return &CredentialGate{store: store, sessions: sessions, mode: mode}
}

// Resolve picks the identity for a request. An API key wins over a bearer
// token when both are present.
func (g *CredentialGate) Resolve(ctx context.Context, creds Credentials) (model.Identity, error) {
	switch {
	case creds.APIKey != "":
		id, err := g.Authenticate(ctx, creds.APIKey)
		if err != nil {
			return nil, err
		}
		return id, nil
	case creds.BearerToken != "" && g.sessions != nil:
		id, err := g.sessions.Verify(creds.BearerToken)
		if err != nil {
			return nil, err
		}
		return id, nil
	default:
		return nil, &Error{Kind: KindUnauthenticated, Message: msgMissingCredential}
	}
}

// Authenticate checks secret against stored hashes. A malformed secret is
// unauthenticated; an unmatched or revoked one is forbidden.
func (g *CredentialGate) Authenticate(ctx context.Context, secret string) (model.APIKeyIdentity, error) {
	body, err := parseSecret(secret)
	if err != nil {
		return model.APIKeyIdentity{}, err
	}

	var candidates []model.Credential
	if g.mode == LookupPrefix {
		candidates, err = g.store.ListActiveByPrefix(ctx, body[:lookupPrefixLen])
	} else {
		candidates, err = g.store.ListActive(ctx)
	}
	if err != nil {
		return model.APIKeyIdentity{}, internalError("load credentials", err)
	}

	for _, cred := range candidates {
		if cred.IsRevoked {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(cred.HashedSecret), []byte(body)) == nil {
			return model.APIKeyIdentity{OwnerID: cred.OwnerID, CredentialID: cred.ID}, nil
		}
	}

	return model.APIKeyIdentity{}, forbiddenError(msgRejectedSecret)
}

// parseSecret validates notipi_<live|test>_<32 hex> and returns the body.
func parseSecret(secret string) (string, error) {
	parts := strings.Split(secret, "_")
	if len(parts) != 3 || parts[0] != secretNamespace {
		return "", &Error{Kind: KindUnauthenticated, Message: msgMalformedSecret}
	}
	if parts[1] != "live" && parts[1] != "test" {
		return "", &Error{Kind: KindUnauthenticated, Message: msgMalformedSecret}
	}
	body := parts[2]
	if len(body) != secretBodyLen || !isLowerHex(body) {
		return "", &Error{Kind: KindUnauthenticated, Message: msgMalformedSecret}
	}
	return body, nil
}

func isLowerHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// MintedSecret is a freshly generated secret. Secret is shown to the caller
// once and never stored.
type MintedSecret struct {
	Secret       string
	LookupPrefix string
	HashedSecret string
}

// GenerateSecret mints a secret for env ("live" or "test") reading
// randomness from r, or crypto/rand when r is nil.
func GenerateSecret(env string, r io.Reader) (MintedSecret, error) {
	if env != "live" && env != "test" {
		return MintedSecret{}, fmt.Errorf("unknown secret environment %q", env)
	}
	if r == nil {
		r = rand.Reader
	}

	raw := make([]byte, secretBodyLen/2)
	if _, err := io.ReadFull(r, raw); err != nil {
		return MintedSecret{}, fmt.Errorf("read random bytes: %w", err)
	}
	body := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(body), SecretHashCost)
	if err != nil {
		return MintedSecret{}, fmt.Errorf("hash secret: %w", err)
	}

	return MintedSecret{
		Secret:       fmt.Sprintf("%s_%s_%s", secretNamespace, env, body),
		LookupPrefix: body[:lookupPrefixLen],
		HashedSecret: string(hash),
	}, nil
}
