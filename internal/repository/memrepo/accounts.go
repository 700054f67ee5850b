// Package memrepo provides in-process implementations of the repository
// interfaces. They back local development without Postgres and the test suites.
package memrepo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/repository"
)

// Accounts is an in-memory repository.AccountRepository.
type Accounts struct {
	mu   sync.RWMutex
	byID map[string]domain.Account
}

// NewAccounts returns an empty account store.
func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[string]domain.Account)}
}

func (r *Accounts) Create(_ context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[account.ID]; ok {
		return repository.ErrConflict
	}
	for _, existing := range r.byID {
		if existing.Scope == account.Scope && existing.TenantID == account.TenantID && strings.EqualFold(existing.Email, account.Email) {
			return repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	account.Email = strings.ToLower(account.Email)
	account.CreatedAt, account.UpdatedAt = now, now
	r.byID[account.ID] = *account
	return nil
}

func (r *Accounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (r *Accounts) GetByEmail(_ context.Context, scope domain.Scope, tenantID, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, account := range r.byID {
		if account.Scope == scope && account.TenantID == tenantID && strings.EqualFold(account.Email, email) {
			found := account
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Accounts) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.Active = active
	account.UpdatedAt = time.Now().UTC()
	r.byID[id] = account
	return nil
}

var _ repository.AccountRepository = (*Accounts)(nil)
