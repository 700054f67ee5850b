package domain

import "time"

// APIKey is a tenant-bound integration credential. Only the hash of the secret is kept.
type APIKey struct {
	ID          string
	Name        string
	TenantID    string
	Prefix      string
	SecretHash  string
	Permissions []string
	RateLimit   int
	Active      bool
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// Usable reports whether the key may authenticate a request at now.
func (k *APIKey) Usable(now time.Time) bool {
	if k == nil || !k.Active || k.RevokedAt != nil {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}
