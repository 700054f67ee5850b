package dto

import (
	"time"

	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/domain"
)

// LoginRequest payload for tenant account login. Scope defaults to facility.
type LoginRequest struct {
	Scope    string `json:"scope"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PlatformLoginRequest payload for platform operator login.
type PlatformLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest optionally names the refresh token whose family should end.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse standard response for endpoints issuing tokens.
type TokenResponse struct {
	TokenType        string     `json:"token_type"`
	AccessToken      string     `json:"access_token"`
	AccessExpiresAt  time.Time  `json:"access_expires_at"`
	RefreshToken     string     `json:"refresh_token,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID       string `json:"id"`
	Scope    string `json:"scope"`
	TenantID string `json:"tenant_id,omitempty"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// PrincipalResponse describes the caller as resolved by the gate.
type PrincipalResponse struct {
	ID                     string           `json:"id"`
	Scope                  string           `json:"scope"`
	Role                   string           `json:"role"`
	TenantID               string           `json:"tenant_id,omitempty"`
	Permissions            []string         `json:"permissions"`
	CredentialType         string           `json:"credential_type"`
	ActingAs               bool             `json:"acting_as"`
	ImpersonatorID         string           `json:"impersonator_id,omitempty"`
	ImpersonationSessionID string           `json:"impersonation_session_id,omitempty"`
	Account                *AccountResponse `json:"account,omitempty"`
}

// NewTokenResponse renders a token pair.
func NewTokenResponse(pair *auth.TokenPair) TokenResponse {
	refreshExp := pair.Refresh.ExpiresAt
	return TokenResponse{
		TokenType:        "Bearer",
		AccessToken:      pair.Access.Value,
		AccessExpiresAt:  pair.Access.ExpiresAt,
		RefreshToken:     pair.Refresh.Value,
		RefreshExpiresAt: &refreshExp,
	}
}

// NewAccessOnlyResponse renders a single access token.
func NewAccessOnlyResponse(token *auth.Token) TokenResponse {
	return TokenResponse{TokenType: "Bearer", AccessToken: token.Value, AccessExpiresAt: token.ExpiresAt}
}

// NewAccountResponse renders an account without its password hash.
func NewAccountResponse(a *domain.Account) *AccountResponse {
	if a == nil {
		return nil
	}
	return &AccountResponse{
		ID:       a.ID,
		Scope:    string(a.Scope),
		TenantID: a.TenantID,
		Email:    a.Email,
		Name:     a.Name,
		Role:     a.Role,
	}
}

// NewPrincipalResponse renders p.
func NewPrincipalResponse(p *domain.Principal, account *domain.Account) PrincipalResponse {
	perms := p.Permissions
	if perms == nil {
		perms = []string{}
	}
	return PrincipalResponse{
		ID:                     p.ID,
		Scope:                  string(p.Scope),
		Role:                   p.Role,
		TenantID:               p.TenantID,
		Permissions:            perms,
		CredentialType:         string(p.CredentialType),
		ActingAs:               p.ActingAs,
		ImpersonatorID:         p.ImpersonatorID,
		ImpersonationSessionID: p.ImpersonationSessionID,
		Account:                NewAccountResponse(account),
	}
}
