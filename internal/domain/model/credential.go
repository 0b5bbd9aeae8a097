package model

import "time"

// Credential is a caller-held API key stored only in hashed form. OwnerID links
// the key to the tenant it sends on behalf of. LookupPrefix holds the first few
// characters of the secret body and is not secret on its own.
type Credential struct {
	ID           string
	OwnerID      string
	Name         string
	LookupPrefix string
	HashedSecret string
	IsRevoked    bool
	UsageCount   int64
	LastUsedAt   *time.Time
	CreatedAt    time.Time
}

// Owner is a tenant as far as the dispatch core is concerned: an identifier and
// the plan tier used to provision default quotas.
type Owner struct {
	ID        string
	Plan      Plan
	CreatedAt time.Time
}
