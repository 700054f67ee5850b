package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/repository"
)

// Impersonation is an in-memory repository.ImpersonationRepository.
type Impersonation struct {
	mu       sync.Mutex
	sessions map[string]*domain.ImpersonationSession
	actions  map[string][]domain.ImpersonationAction
	FailWith error
}

// NewImpersonation returns an empty session store.
func NewImpersonation() *Impersonation {
	return &Impersonation{
		sessions: make(map[string]*domain.ImpersonationSession),
		actions:  make(map[string][]domain.ImpersonationAction),
	}
}

func (r *Impersonation) Create(_ context.Context, session *domain.ImpersonationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	if _, ok := r.sessions[session.ID]; ok {
		return repository.ErrConflict
	}
	if session.Status == domain.ImpersonationActive {
		for _, existing := range r.sessions {
			if existing.ImpersonatorID == session.ImpersonatorID && existing.Status == domain.ImpersonationActive {
				return repository.ErrConflict
			}
		}
	}
	cp := *session
	cp.Actions = nil
	r.sessions[session.ID] = &cp
	return nil
}

func (r *Impersonation) GetByID(_ context.Context, id string) (*domain.ImpersonationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	session, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *session
	cp.Actions = append([]domain.ImpersonationAction(nil), r.actions[id]...)
	return &cp, nil
}

func (r *Impersonation) FindActiveByImpersonator(_ context.Context, impersonatorID string) (*domain.ImpersonationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	for _, session := range r.sessions {
		if session.ImpersonatorID == impersonatorID && session.Status == domain.ImpersonationActive {
			cp := *session
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Impersonation) Close(_ context.Context, id string, status domain.ImpersonationStatus, endedAt time.Time, endedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	session, ok := r.sessions[id]
	if !ok || session.Status != domain.ImpersonationActive {
		return repository.ErrNotFound
	}
	at := endedAt
	session.Status = status
	session.EndedAt = &at
	session.EndedBy = endedBy
	return nil
}

func (r *Impersonation) AppendAction(_ context.Context, sessionID, entry string, at time.Time) (*domain.ImpersonationAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	session, ok := r.sessions[sessionID]
	if !ok || session.Status != domain.ImpersonationActive {
		return nil, repository.ErrNotFound
	}
	var prev *domain.ImpersonationAction
	if log := r.actions[sessionID]; len(log) > 0 {
		prev = &log[len(log)-1]
	}
	action := domain.NextAction(sessionID, prev, entry, at)
	r.actions[sessionID] = append(r.actions[sessionID], action)
	return &action, nil
}

func (r *Impersonation) ListActions(_ context.Context, sessionID string) ([]domain.ImpersonationAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	return append([]domain.ImpersonationAction(nil), r.actions[sessionID]...), nil
}

func (r *Impersonation) ListActive(_ context.Context) ([]domain.ImpersonationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	var result []domain.ImpersonationSession
	for _, session := range r.sessions {
		if session.Status == domain.ImpersonationActive {
			result = append(result, *session)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.Before(result[j].StartedAt) })
	return result, nil
}

func (r *Impersonation) ListByImpersonator(_ context.Context, impersonatorID string, limit int) ([]domain.ImpersonationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	var result []domain.ImpersonationSession
	for _, session := range r.sessions {
		if session.ImpersonatorID == impersonatorID {
			result = append(result, *session)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ repository.ImpersonationRepository = (*Impersonation)(nil)
