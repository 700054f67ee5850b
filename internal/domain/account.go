package domain

import "time"

// Account is a login-capable identity in any of the four account classes.
// Platform accounts have an empty TenantID.
type Account struct {
	ID           string
	Scope        Scope
	TenantID     string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
