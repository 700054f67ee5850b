package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/config"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/events"
	"github.com/gymstack/facility-auth/internal/repository"
)

// AuthService coordinates login, refresh and logout for every account class.
type AuthService struct {
	accounts    repository.AccountRepository
	tokens      *auth.TokenManager
	revocations auth.RevocationList
	events      events.Dispatcher
	logger      *zap.Logger
	bcryptCost  int
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	Accounts    repository.AccountRepository
	Tokens      *auth.TokenManager
	Revocations auth.RevocationList
	Events      events.Dispatcher
	Logger      *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AuthService{
		accounts:    deps.Accounts,
		tokens:      deps.Tokens,
		revocations: deps.Revocations,
		events:      deps.Events,
		logger:      deps.Logger.Named("auth"),
		bcryptCost:  cfg.BcryptCost,
	}
}

// LoginInput identifies the account by scope, tenant and email.
type LoginInput struct {
	Scope    domain.Scope
	TenantID string
	Email    string
	Password string
}

// Login verifies a password and starts a new token family.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*domain.Account, *auth.TokenPair, error) {
	in.Email = strings.TrimSpace(in.Email)
	if !in.Scope.Valid() || in.Email == "" || in.Password == "" {
		return nil, nil, auth.ErrInvalidInput.WithMessage("scope, email and password are required")
	}
	if in.Scope.TenantBound() == (in.TenantID == "") {
		return nil, nil, auth.ErrInvalidInput.WithMessage("tenant is required for this account type")
	}

	account, err := s.accounts.GetByEmail(ctx, in.Scope, in.TenantID, in.Email)
	if errors.Is(err, repository.ErrNotFound) {
		_ = auth.CheckPassword("", in.Password)
		s.loginFailed(ctx, in, "unknown_account")
		return nil, nil, auth.ErrInvalidCredential.WithMessage("invalid email or password")
	}
	if err != nil {
		return nil, nil, err
	}
	if err := auth.CheckPassword(account.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			s.loginFailed(ctx, in, "bad_password")
			return nil, nil, auth.ErrInvalidCredential.WithMessage("invalid email or password")
		}
		return nil, nil, err
	}
	if !account.Active {
		s.loginFailed(ctx, in, "inactive")
		return nil, nil, auth.ErrInvalidCredential.WithMessage("invalid email or password")
	}

	pair, err := s.tokens.IssueTokenPair(ctx, account.ID, account.Scope, account.Role, account.TenantID)
	if err != nil {
		return nil, nil, err
	}
	events.Publish(ctx, s.events, s.logger, events.Event{
		Type:  events.EventLoginSucceeded,
		Actor: events.Actor{ID: account.ID, Scope: string(account.Scope), TenantID: account.TenantID},
		Attrs: map[string]string{"family_id": pair.FamilyID},
	})
	return account, pair, nil
}

// Refresh rotates a refresh token. The new pair carries the account's current
// role; disabled, deleted or rebound accounts lose their session instead.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != domain.TokenTypeRefresh {
		return nil, auth.ErrMalformedCredential.WithMessage("not a refresh token")
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, s.endSession(ctx, claims, "account not found")
	case err != nil:
		return nil, auth.ErrCredentialStoreUnavailable.Wrap(err)
	}
	if !account.Active {
		return nil, s.endSession(ctx, claims, "account is disabled")
	}
	if account.Scope != claims.Scope || account.TenantID != claims.TenantID {
		return nil, s.endSession(ctx, claims, "account binding changed")
	}

	return s.tokens.RotateFor(ctx, refreshToken, account.Role, account.TenantID)
}

// endSession revokes the family behind claims and returns the error Refresh
// reports for reason.
func (s *AuthService) endSession(ctx context.Context, claims *auth.Claims, reason string) error {
	if err := s.tokens.RevokeFamily(ctx, claims.FamilyID); err != nil {
		s.logger.Warn("failed to revoke refresh family",
			zap.String("family_id", claims.FamilyID),
			zap.String("account_id", claims.Subject),
			zap.Error(err),
		)
		return err
	}
	s.logger.Info("refresh session ended",
		zap.String("family_id", claims.FamilyID),
		zap.String("account_id", claims.Subject),
		zap.String("reason", reason),
	)
	return auth.ErrRevokedCredential.WithMessage(reason)
}

// Logout revokes the presented access token and, when given, the refresh family.
func (s *AuthService) Logout(ctx context.Context, principal *domain.Principal, refreshToken string) error {
	if principal == nil || principal.CredentialType != domain.CredentialBearer {
		return auth.ErrScopeMismatch.WithMessage("logout requires a user session")
	}
	if s.revocations != nil && principal.TokenID != "" {
		if err := s.revocations.Revoke(ctx, principal.TokenID, principal.TokenExpiresAt); err != nil {
			return auth.ErrCredentialStoreUnavailable.Wrap(err)
		}
	}

	familyID := ""
	if refreshToken != "" {
		claims, err := s.tokens.Verify(refreshToken)
		switch {
		case err != nil:
			s.logger.Debug("logout with unusable refresh token", zap.Error(err))
		case claims.Type != domain.TokenTypeRefresh || claims.Subject != principal.ID:
			return auth.ErrInvalidInput.WithMessage("refresh token does not belong to caller")
		default:
			familyID = claims.FamilyID
			if err := s.tokens.RevokeFamily(ctx, familyID); err != nil {
				return err
			}
		}
	}

	events.Publish(ctx, s.events, s.logger, events.Event{
		Type:  events.EventLogout,
		Actor: events.Actor{ID: principal.ID, Scope: string(principal.Scope), TenantID: principal.TenantID},
		Attrs: map[string]string{"family_id": familyID},
	})
	return nil
}

// Me returns the account behind a bearer principal. Impersonation principals
// resolve to the target user.
func (s *AuthService) Me(ctx context.Context, principal *domain.Principal) (*domain.Account, error) {
	if principal == nil || principal.CredentialType != domain.CredentialBearer {
		return nil, nil
	}
	account, err := s.accounts.GetByID(ctx, principal.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, auth.ErrRevokedCredential.WithMessage("account no longer exists")
	}
	return account, err
}

// CreateAccountInput describes a new login-capable account.
type CreateAccountInput struct {
	Scope    domain.Scope
	TenantID string
	Email    string
	Name     string
	Password string
	Role     string
}

// CreateAccount validates the role for the scope and stores a new active account.
func (s *AuthService) CreateAccount(ctx context.Context, in CreateAccountInput) (*domain.Account, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, auth.ErrInvalidInput.WithMessage("valid email required")
	}
	if !in.Scope.Valid() {
		return nil, auth.ErrInvalidInput.WithMessage("unknown scope")
	}
	if in.Scope.TenantBound() == (in.TenantID == "") {
		return nil, auth.ErrInvalidInput.WithMessage("tenant binding does not match scope")
	}
	if _, err := auth.PermissionsFor(in.Scope, in.Role); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		ID:           uuid.NewString(),
		Scope:        in.Scope,
		TenantID:     in.TenantID,
		Email:        in.Email,
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
		Role:         in.Role,
		Active:       true,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, auth.ErrInvalidInput.WithMessage("account already exists")
		}
		return nil, err
	}
	s.logger.Info("account created",
		zap.String("account_id", account.ID),
		zap.String("scope", string(account.Scope)),
		zap.String("tenant_id", account.TenantID),
		zap.String("role", account.Role),
	)
	return account, nil
}

// ReportRefreshReuse is installed as the token manager's reuse callback.
func ReportRefreshReuse(d events.Dispatcher, logger *zap.Logger) func(ctx context.Context, familyID, subjectID string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, familyID, subjectID string) {
		logger.Warn("refresh token reuse detected; family revoked",
			zap.String("family_id", familyID), zap.String("subject", subjectID))
		events.Publish(ctx, d, logger, events.Event{
			Type:  events.EventRefreshReuseDetected,
			Actor: events.Actor{ID: subjectID},
			Attrs: map[string]string{"family_id": familyID},
		})
	}
}

func (s *AuthService) loginFailed(ctx context.Context, in LoginInput, reason string) {
	events.Publish(ctx, s.events, s.logger, events.Event{
		Type:    events.EventLoginFailed,
		Actor:   events.Actor{Scope: string(in.Scope), TenantID: in.TenantID},
		Subject: strings.ToLower(in.Email),
		Attrs:   map[string]string{"reason": reason},
	})
}
