package domain

import "time"

// Principal is the resolved identity of one request. It is never persisted.
type Principal struct {
	ID             string
	Scope          Scope
	Role           string
	Permissions    []string
	TenantID       string
	CredentialType CredentialType

	TokenID        string
	TokenExpiresAt time.Time
	APIKeyID       string
	RateLimit      int

	ActingAs               bool
	ImpersonatorID         string
	ImpersonationSessionID string
}

// HasPermission reports whether perm was granted to the principal.
func (p *Principal) HasPermission(perm string) bool {
	if p == nil {
		return false
	}
	for _, granted := range p.Permissions {
		if granted == perm {
			return true
		}
	}
	return false
}

// IsTenantBound reports whether the principal resolves work against a tenant.
func (p *Principal) IsTenantBound() bool {
	return p != nil && p.Scope.TenantBound() && p.TenantID != ""
}
