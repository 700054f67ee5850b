package auth

import (
	"context"
	"sync"
	"time"

	"github.com/gymstack/facility-auth/internal/domain"
)

// AdvanceResult reports the outcome of a refresh-family compare-and-swap.
type AdvanceResult int

const (
	// FamilyAdvanced means the presented jti was the latest and has been replaced.
	FamilyAdvanced AdvanceResult = iota
	// FamilyStale means an older token of the family was presented.
	FamilyStale
	// FamilyRevoked means the family has already been revoked.
	FamilyRevoked
	// FamilyMissing means the family is unknown or has aged out.
	FamilyMissing
)

func (r AdvanceResult) String() string {
	switch r {
	case FamilyAdvanced:
		return "advanced"
	case FamilyStale:
		return "stale"
	case FamilyRevoked:
		return "revoked"
	default:
		return "missing"
	}
}

// FamilyStore persists refresh-token families. Advance must be atomic: two callers
// presenting the same jti concurrently must not both observe FamilyAdvanced.
type FamilyStore interface {
	Create(ctx context.Context, family domain.TokenFamily, ttl time.Duration) error
	Advance(ctx context.Context, familyID, presentedJTI, nextJTI string) (AdvanceResult, error)
	Revoke(ctx context.Context, familyID string) error
	Get(ctx context.Context, familyID string) (*domain.TokenFamily, error)
}

// RevocationList tracks individually revoked access tokens until they expire.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type memoryFamily struct {
	family    domain.TokenFamily
	expiresAt time.Time
}

// MemoryFamilyStore keeps families in process memory.
type MemoryFamilyStore struct {
	mu       sync.Mutex
	now      func() time.Time
	families map[string]*memoryFamily
}

// NewMemoryFamilyStore builds an empty store using clock for expiry.
func NewMemoryFamilyStore(clock func() time.Time) *MemoryFamilyStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryFamilyStore{now: clock, families: make(map[string]*memoryFamily)}
}

func (s *MemoryFamilyStore) Create(_ context.Context, family domain.TokenFamily, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.families[family.ID] = &memoryFamily{family: family, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryFamilyStore) Advance(_ context.Context, familyID, presentedJTI, nextJTI string) (AdvanceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lookup(familyID)
	if !ok {
		return FamilyMissing, nil
	}
	if entry.family.Revoked {
		return FamilyRevoked, nil
	}
	if entry.family.LatestJTI != presentedJTI {
		return FamilyStale, nil
	}
	entry.family.LatestJTI = nextJTI
	return FamilyAdvanced, nil
}

func (s *MemoryFamilyStore) Revoke(_ context.Context, familyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.lookup(familyID); ok {
		entry.family.Revoked = true
	}
	return nil
}

func (s *MemoryFamilyStore) Get(_ context.Context, familyID string) (*domain.TokenFamily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lookup(familyID)
	if !ok {
		return nil, nil
	}
	cp := entry.family
	return &cp, nil
}

func (s *MemoryFamilyStore) lookup(familyID string) (*memoryFamily, bool) {
	entry, ok := s.families[familyID]
	if !ok {
		return nil, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.families, familyID)
		return nil, false
	}
	return entry, true
}

// MemoryRevocationList keeps revoked jtis in process memory.
type MemoryRevocationList struct {
	mu      sync.Mutex
	now     func() time.Time
	revoked map[string]time.Time
}

// NewMemoryRevocationList builds an empty list using clock for expiry.
func NewMemoryRevocationList(clock func() time.Time) *MemoryRevocationList {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryRevocationList{now: clock, revoked: make(map[string]time.Time)}
}

func (l *MemoryRevocationList) Revoke(_ context.Context, jti string, until time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.now().Before(until) {
		return nil
	}
	l.revoked[jti] = until
	return nil
}

func (l *MemoryRevocationList) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.revoked[jti]
	if !ok {
		return false, nil
	}
	if !l.now().Before(until) {
		delete(l.revoked, jti)
		return false, nil
	}
	return true, nil
}
