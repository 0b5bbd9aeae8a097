package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

const sessionIssuer = "notipi"

// SessionVerifier validates HS256 session tokens issued to dashboard users.
// Login itself happens elsewhere; notipi only checks the signature and claims.
type SessionVerifier struct {
	secret []byte
}

// NewSessionVerifier returns a verifier for tokens signed with secret, or nil
// when secret is empty so session auth stays disabled.
func NewSessionVerifier(secret string) *SessionVerifier {
	if secret == "" {
		return nil
	}
	return &SessionVerifier{secret: []byte(secret)}
}

// Verify parses token and returns the session identity in its subject claim.
func (v *SessionVerifier) Verify(token string) (model.SessionIdentity, error) {
	parsed, err := jwt.Parse(
		[]byte(token),
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return model.SessionIdentity{}, &Error{Kind: KindUnauthenticated, Message: "invalid session token", Err: err}
	}

	sub := parsed.Subject()
	if sub == "" {
		return model.SessionIdentity{}, &Error{Kind: KindUnauthenticated, Message: "invalid session token", Err: errors.New("missing subject")}
	}
	return model.SessionIdentity{OwnerID: sub}, nil
}

// Sign issues a token for ownerID valid for ttl. It backs the development
// CLI and tests.
func (v *SessionVerifier) Sign(ownerID string, ttl time.Duration, now time.Time) (string, error) {
	tok, err := jwt.NewBuilder().
		Issuer(sessionIssuer).
		Subject(ownerID).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("build session token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return string(signed), nil
}
