package model

// Identity is the resolved caller of a request. It is either a SessionIdentity
// (a signed-in dashboard user) or an APIKeyIdentity (a credential holder), and
// is resolved exactly once at the gate.
type Identity interface {
	Owner() string
	// Credential returns the credential id, or "" for session callers.
	Credential() string
	isIdentity()
}

// SessionIdentity is a caller authenticated through a dashboard session token.
type SessionIdentity struct {
	OwnerID string
}

func (s SessionIdentity) Owner() string      { return s.OwnerID }
func (s SessionIdentity) Credential() string { return "" }
func (SessionIdentity) isIdentity()          {}

// APIKeyIdentity is a caller authenticated with a stored credential.
type APIKeyIdentity struct {
	OwnerID      string
	CredentialID string
}

func (a APIKeyIdentity) Owner() string      { return a.OwnerID }
func (a APIKeyIdentity) Credential() string { return a.CredentialID }
func (APIKeyIdentity) isIdentity()          {}
