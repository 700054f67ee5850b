package domain

import "time"

// Scope identifies the trust domain of a token or principal.
type Scope string

const (
	ScopePlatform Scope = "platform"
	ScopeFacility Scope = "facility"
	ScopeClient   Scope = "client"
	ScopeTrainer  Scope = "trainer"
)

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopePlatform, ScopeFacility, ScopeClient, ScopeTrainer:
		return true
	}
	return false
}

// TenantBound reports whether credentials of this scope must carry a tenant.
func (s Scope) TenantBound() bool {
	return s != ScopePlatform
}

// TokenType differentiates access and refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// CredentialType records how a principal authenticated.
type CredentialType string

const (
	CredentialBearer CredentialType = "bearer"
	CredentialAPIKey CredentialType = "api_key"
)

// TokenFamily tracks the lineage of refresh tokens issued from one login.
type TokenFamily struct {
	ID           string
	SubjectID    string
	LatestJTI    string
	SessionStart time.Time
	Revoked      bool
}
