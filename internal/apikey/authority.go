// Package apikey authenticates tenant integrations presenting an X-API-Key header.
package apikey

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/repository"
	"github.com/gymstack/facility-auth/pkg/util/errorutil"
)

// ErrKeyNotFound is returned when revoking a key the tenant does not own.
var ErrKeyNotFound = errorutil.NewDomainError("API_KEY_NOT_FOUND", "api key not found", http.StatusNotFound, nil)

const (
	defaultRateLimit    = 1000
	defaultTouchTimeout = 2 * time.Second
	maxNameLen          = 100
)

// Config tunes an Authority.
type Config struct {
	DefaultRateLimit int
	TouchTimeout     time.Duration
	Clock            func() time.Time
}

// Authority creates, validates and revokes API keys.
type Authority struct {
	repo         repository.APIKeyRepository
	logger       *zap.Logger
	now          func() time.Time
	defaultRate  int
	touchTimeout time.Duration
	touches      sync.WaitGroup
}

// NewAuthority builds an Authority over repo.
func NewAuthority(repo repository.APIKeyRepository, logger *zap.Logger, cfg Config) *Authority {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.DefaultRateLimit <= 0 {
		cfg.DefaultRateLimit = defaultRateLimit
	}
	if cfg.TouchTimeout <= 0 {
		cfg.TouchTimeout = defaultTouchTimeout
	}
	return &Authority{
		repo:         repo,
		logger:       logger.Named("apikey"),
		now:          cfg.Clock,
		defaultRate:  cfg.DefaultRateLimit,
		touchTimeout: cfg.TouchTimeout,
	}
}

// CreateInput describes a new key.
type CreateInput struct {
	TenantID      string
	Name          string
	Permissions   []string
	RateLimit     int
	ExpiresInDays *int
}

// Create stores a new key and returns it with the plaintext secret. The secret
// cannot be recovered afterwards.
func (a *Authority) Create(ctx context.Context, in CreateInput) (*domain.APIKey, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.TenantID == "" {
		return nil, "", auth.ErrInvalidInput.WithMessage("tenant required")
	}
	if in.Name == "" || len(in.Name) > maxNameLen {
		return nil, "", auth.ErrInvalidInput.WithMessage("name must be 1-100 characters")
	}
	perms, err := validatePermissions(in.Permissions)
	if err != nil {
		return nil, "", err
	}
	if in.RateLimit < 0 {
		return nil, "", auth.ErrInvalidInput.WithMessage("rate limit must not be negative")
	}
	if in.RateLimit == 0 {
		in.RateLimit = a.defaultRate
	}

	now := a.now().UTC()
	key := &domain.APIKey{
		ID:          uuid.NewString(),
		Name:        in.Name,
		TenantID:    in.TenantID,
		Permissions: perms,
		RateLimit:   in.RateLimit,
		Active:      true,
		CreatedAt:   now,
	}
	if in.ExpiresInDays != nil {
		if *in.ExpiresInDays < 1 {
			return nil, "", auth.ErrInvalidInput.WithMessage("expiresInDays must be at least 1")
		}
		expiresAt := now.AddDate(0, 0, *in.ExpiresInDays)
		key.ExpiresAt = &expiresAt
	}

	// Prefix collisions are astronomically rare but the unique index still reports them.
	for attempt := 0; attempt < 3; attempt++ {
		prefix, secret, err := Generate()
		if err != nil {
			return nil, "", err
		}
		key.Prefix = prefix
		key.SecretHash = HashSecret(secret)
		err = a.repo.Create(ctx, key)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		a.logger.Info("api key created",
			zap.String("key_id", key.ID),
			zap.String("tenant_id", key.TenantID),
			zap.String("prefix", key.Prefix),
		)
		return key, Format(prefix, secret), nil
	}
	return nil, "", errors.New("could not allocate a unique api key prefix")
}

// Validate authenticates raw. Any credential failure yields (nil, nil); only an
// unreachable store produces an error, wrapping auth.ErrCredentialStoreUnavailable.
func (a *Authority) Validate(ctx context.Context, raw string) (*domain.Principal, error) {
	prefix, secret, ok := Parse(raw)
	if !ok {
		a.logger.Debug("api key rejected", zap.String("reason", "malformed"))
		return nil, nil
	}

	key, err := a.repo.GetByPrefix(ctx, prefix)
	if errors.Is(err, repository.ErrNotFound) {
		a.logger.Debug("api key rejected", zap.String("reason", "unknown_prefix"), zap.String("prefix", prefix))
		return nil, nil
	}
	if err != nil {
		return nil, auth.ErrCredentialStoreUnavailable.Wrap(err)
	}

	if !SecretMatches(secret, key.SecretHash) {
		a.logger.Debug("api key rejected", zap.String("reason", "hash_mismatch"), zap.String("prefix", prefix))
		return nil, nil
	}
	now := a.now()
	if !key.Usable(now) {
		a.logger.Debug("api key rejected", zap.String("reason", "unusable"), zap.String("key_id", key.ID))
		return nil, nil
	}

	a.touch(ctx, key.ID, now)

	return &domain.Principal{
		ID:             key.ID,
		Scope:          domain.ScopeFacility,
		Role:           auth.RoleAPIKey,
		Permissions:    append([]string(nil), key.Permissions...),
		TenantID:       key.TenantID,
		CredentialType: domain.CredentialAPIKey,
		APIKeyID:       key.ID,
		RateLimit:      key.RateLimit,
	}, nil
}

// Revoke deactivates keyID within tenantID. Repeated calls succeed.
func (a *Authority) Revoke(ctx context.Context, tenantID, keyID string) error {
	err := a.repo.Revoke(ctx, tenantID, keyID, a.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrKeyNotFound
	}
	if err != nil {
		return err
	}
	a.logger.Info("api key revoked", zap.String("key_id", keyID), zap.String("tenant_id", tenantID))
	return nil
}

// List returns the tenant's keys, newest first. Secrets are never included.
func (a *Authority) List(ctx context.Context, tenantID string) ([]domain.APIKey, error) {
	keys, err := a.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].SecretHash = ""
	}
	return keys, nil
}

// Wait blocks until pending last-used updates finish.
func (a *Authority) Wait() {
	a.touches.Wait()
}

func (a *Authority) touch(ctx context.Context, keyID string, at time.Time) {
	a.touches.Add(1)
	go func() {
		defer a.touches.Done()
		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.touchTimeout)
		defer cancel()
		if err := a.repo.TouchLastUsed(touchCtx, keyID, at.UTC()); err != nil {
			a.logger.Warn("failed to record api key usage", zap.String("key_id", keyID), zap.Error(err))
		}
	}()
}

func validatePermissions(perms []string) ([]string, error) {
	if len(perms) == 0 {
		return nil, auth.ErrInvalidInput.WithMessage("at least one permission required")
	}
	universe := auth.PermissionUniverse(domain.ScopeFacility)
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, perm := range perms {
		perm = strings.TrimSpace(perm)
		if _, ok := universe[perm]; !ok {
			return nil, auth.ErrInvalidInput.WithMessage("unknown permission " + perm)
		}
		if _, dup := seen[perm]; dup {
			continue
		}
		seen[perm] = struct{}{}
		out = append(out, perm)
	}
	return out, nil
}
