package dto

import (
	"time"

	"github.com/gymstack/facility-auth/internal/apikey"
	"github.com/gymstack/facility-auth/internal/domain"
)

// CreateAPIKeyRequest payload for minting a tenant integration key.
type CreateAPIKeyRequest struct {
	Name          string   `json:"name"`
	Permissions   []string `json:"permissions"`
	RateLimit     int      `json:"rate_limit"`
	ExpiresInDays *int     `json:"expires_in_days"`
}

// APIKeyResponse is the listing view of a key. The secret is never included.
type APIKeyResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	TenantID    string     `json:"tenant_id"`
	Prefix      string     `json:"prefix"`
	Masked      string     `json:"masked"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreatedAPIKeyResponse adds the plaintext key, shown exactly once.
type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// ToInput converts the request for the authority.
func (r CreateAPIKeyRequest) ToInput() apikey.CreateInput {
	return apikey.CreateInput{
		Name:          r.Name,
		Permissions:   r.Permissions,
		RateLimit:     r.RateLimit,
		ExpiresInDays: r.ExpiresInDays,
	}
}

// NewAPIKeyResponse renders k.
func NewAPIKeyResponse(k *domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:          k.ID,
		Name:        k.Name,
		TenantID:    k.TenantID,
		Prefix:      k.Prefix,
		Masked:      apikey.Mask(k.Prefix),
		Permissions: k.Permissions,
		RateLimit:   k.RateLimit,
		Active:      k.Active,
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
		RevokedAt:   k.RevokedAt,
		CreatedAt:   k.CreatedAt,
	}
}
