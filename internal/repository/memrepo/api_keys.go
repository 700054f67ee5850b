package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/repository"
)

// APIKeys is an in-memory repository.APIKeyRepository. FailWith, when set, is
// returned from every call to simulate an unreachable store.
type APIKeys struct {
	mu       sync.RWMutex
	byID     map[string]*domain.APIKey
	FailWith error
}

// NewAPIKeys returns an empty key store.
func NewAPIKeys() *APIKeys {
	return &APIKeys{byID: make(map[string]*domain.APIKey)}
}

func (r *APIKeys) Create(_ context.Context, key *domain.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	for _, existing := range r.byID {
		if existing.ID == key.ID || existing.Prefix == key.Prefix {
			return repository.ErrConflict
		}
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	r.byID[key.ID] = cloneKey(key)
	return nil
}

func (r *APIKeys) GetByPrefix(_ context.Context, prefix string) (*domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	for _, key := range r.byID {
		if key.Prefix == prefix {
			return cloneKey(key), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *APIKeys) ListByTenant(_ context.Context, tenantID string) ([]domain.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	var result []domain.APIKey
	for _, key := range r.byID {
		if key.TenantID == tenantID {
			result = append(result, *cloneKey(key))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *APIKeys) Revoke(_ context.Context, tenantID, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	key, ok := r.byID[id]
	if !ok || key.TenantID != tenantID {
		return repository.ErrNotFound
	}
	key.Active = false
	if key.RevokedAt == nil {
		revokedAt := at
		key.RevokedAt = &revokedAt
	}
	return nil
}

func (r *APIKeys) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	key, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	usedAt := at
	key.LastUsedAt = &usedAt
	return nil
}

// SetFailure makes every subsequent call return err; nil restores normal behavior.
func (r *APIKeys) SetFailure(err error) {
	r.mu.Lock()
	r.FailWith = err
	r.mu.Unlock()
}

func cloneKey(key *domain.APIKey) *domain.APIKey {
	cp := *key
	cp.Permissions = append([]string(nil), key.Permissions...)
	if key.ExpiresAt != nil {
		t := *key.ExpiresAt
		cp.ExpiresAt = &t
	}
	if key.LastUsedAt != nil {
		t := *key.LastUsedAt
		cp.LastUsedAt = &t
	}
	if key.RevokedAt != nil {
		t := *key.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

var _ repository.APIKeyRepository = (*APIKeys)(nil)
