package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/ids"
)

const (
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 7 * 24 * time.Hour
	defaultAbsoluteSession = 24 * time.Hour
	issuedAtSkew           = 5 * time.Second
)

// TokenManagerConfig configures a TokenManager.
type TokenManagerConfig struct {
	Secret                 string
	Issuer                 string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	AbsoluteSessionTimeout time.Duration
	Families               FamilyStore
	Clock                  func() time.Time
	// OnReuse is called after a replayed refresh token revoked its family.
	OnReuse func(ctx context.Context, familyID, subjectID string)
}

// TokenManager issues and verifies scoped bearer tokens.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	absolute   time.Duration
	families   FamilyStore
	now        func() time.Time
	onReuse    func(ctx context.Context, familyID, subjectID string)
}

// NewTokenManager builds a new manager. A nil family store keeps families in memory.
func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	tm := &TokenManager{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		absolute:   cfg.AbsoluteSessionTimeout,
		families:   cfg.Families,
		now:        cfg.Clock,
		onReuse:    cfg.OnReuse,
	}
	if tm.accessTTL <= 0 {
		tm.accessTTL = defaultAccessTTL
	}
	if tm.refreshTTL <= 0 {
		tm.refreshTTL = defaultRefreshTTL
	}
	if tm.absolute <= 0 {
		tm.absolute = defaultAbsoluteSession
	}
	if tm.now == nil {
		tm.now = time.Now
	}
	if tm.families == nil {
		tm.families = NewMemoryFamilyStore(tm.now)
	}
	return tm
}

// Claims describes the JWT payload shared by every account class.
type Claims struct {
	Scope                  domain.Scope     `json:"scope,omitempty"`
	Role                   string           `json:"role,omitempty"`
	Permissions            []string         `json:"permissions,omitempty"`
	TenantID               string           `json:"tenant_id,omitempty"`
	Type                   domain.TokenType `json:"typ"`
	FamilyID               string           `json:"fam,omitempty"`
	SessionStart           *jwt.NumericDate `json:"sst,omitempty"`
	ActorID                string           `json:"act,omitempty"`
	ImpersonationSessionID string           `json:"isid,omitempty"`
	jwt.RegisteredClaims
}

// Principal materializes the request identity described by c.
func (c *Claims) Principal() *domain.Principal {
	p := &domain.Principal{
		ID:             c.Subject,
		Scope:          c.Scope,
		Role:           c.Role,
		Permissions:    append([]string(nil), c.Permissions...),
		TenantID:       c.TenantID,
		CredentialType: domain.CredentialBearer,
		TokenID:        c.ID,
	}
	if c.ExpiresAt != nil {
		p.TokenExpiresAt = c.ExpiresAt.Time
	}
	if c.ActorID != "" {
		p.ActingAs = true
		p.ImpersonatorID = c.ActorID
		p.ImpersonationSessionID = c.ImpersonationSessionID
	}
	return p
}

// Token is a signed credential together with its decoded claims.
type Token struct {
	Value     string
	Claims    *Claims
	ExpiresAt time.Time
}

// TokenPair bundles the credentials returned by login and rotation.
type TokenPair struct {
	Access   *Token
	Refresh  *Token
	FamilyID string
}

// IssueAccessToken signs an access token for subject with role permissions expanded.
func (tm *TokenManager) IssueAccessToken(subject string, scope domain.Scope, role, tenantID string) (*Token, error) {
	perms, err := checkIssue(subject, scope, role, tenantID)
	if err != nil {
		return nil, err
	}
	now := tm.now()
	claims := &Claims{
		Scope:       scope,
		Role:        role,
		Permissions: perms,
		TenantID:    tenantID,
		Type:        domain.TokenTypeAccess,
		RegisteredClaims: tm.registered(subject, now, now.Add(tm.accessTTL)),
	}
	return tm.sign(claims)
}

// IssueRefreshToken starts a new token family for subject and returns its first refresh token.
func (tm *TokenManager) IssueRefreshToken(ctx context.Context, subject string, scope domain.Scope, role, tenantID string) (*Token, string, error) {
	if _, err := checkIssue(subject, scope, role, tenantID); err != nil {
		return nil, "", err
	}
	now := tm.now()
	family := domain.TokenFamily{
		ID:           ids.NewAt(now),
		SubjectID:    subject,
		LatestJTI:    ids.NewAt(now),
		SessionStart: now,
	}
	if err := tm.families.Create(ctx, family, tm.absolute); err != nil {
		return nil, "", ErrCredentialStoreUnavailable.Wrap(err)
	}
	token, err := tm.signRefresh(subject, scope, role, tenantID, family.ID, family.LatestJTI, now, now)
	if err != nil {
		return nil, "", err
	}
	return token, family.ID, nil
}

// IssueTokenPair issues an access token and a refresh token from a fresh family.
func (tm *TokenManager) IssueTokenPair(ctx context.Context, subject string, scope domain.Scope, role, tenantID string) (*TokenPair, error) {
	access, err := tm.IssueAccessToken(subject, scope, role, tenantID)
	if err != nil {
		return nil, err
	}
	refresh, familyID, err := tm.IssueRefreshToken(ctx, subject, scope, role, tenantID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh, FamilyID: familyID}, nil
}

// IssueImpersonationToken signs a facility access token for the session target.
// It lives as long as the session; the gate re-checks the session on every request.
func (tm *TokenManager) IssueImpersonationToken(session *domain.ImpersonationSession) (*Token, error) {
	if session == nil || session.ImpersonatorID == "" || session.ID == "" {
		return nil, ErrInvalidInput.WithMessage("impersonation session required")
	}
	perms, err := checkIssue(session.TargetUserID, domain.ScopeFacility, session.TargetRole, session.TargetTenantID)
	if err != nil {
		return nil, err
	}
	now := tm.now()
	exp := session.ExpiresAt
	if !exp.After(now) {
		return nil, ErrExpiredCredential.WithMessage("impersonation session has expired")
	}
	claims := &Claims{
		Scope:                  domain.ScopeFacility,
		Role:                   session.TargetRole,
		Permissions:            perms,
		TenantID:               session.TargetTenantID,
		Type:                   domain.TokenTypeAccess,
		ActorID:                session.ImpersonatorID,
		ImpersonationSessionID: session.ID,
		RegisteredClaims:       tm.registered(session.TargetUserID, now, exp),
	}
	return tm.sign(claims)
}

// Verify checks signature, issuer and expiry, and for refresh tokens the absolute
// session ceiling. It never consults revocation state.
func (tm *TokenManager) Verify(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrMalformedCredential
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return tm.secret, nil
	})
	if err != nil {
		return nil, ErrMalformedCredential.Wrap(err)
	}
	if !parsed.Valid {
		return nil, ErrMalformedCredential
	}
	if err := tm.validate(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyAccess verifies tokenStr and requires it to be an access token.
func (tm *TokenManager) VerifyAccess(tokenStr string) (*Claims, error) {
	claims, err := tm.Verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Type != domain.TokenTypeAccess {
		return nil, ErrMalformedCredential.WithMessage("not an access token")
	}
	return claims, nil
}

// Rotate exchanges a refresh token for a new access and refresh token in the same
// family, keeping the role and tenant carried by the presented token. Presenting
// any refresh token other than the latest one revokes the family.
func (tm *TokenManager) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return tm.rotate(ctx, refreshToken, nil)
}

// RotateFor is Rotate with the role and tenant taken from the subject's current
// record, so role changes apply at the next refresh.
func (tm *TokenManager) RotateFor(ctx context.Context, refreshToken, role, tenantID string) (*TokenPair, error) {
	return tm.rotate(ctx, refreshToken, &grant{role: role, tenantID: tenantID})
}

type grant struct {
	role     string
	tenantID string
}

func (tm *TokenManager) rotate(ctx context.Context, refreshToken string, current *grant) (*TokenPair, error) {
	claims, err := tm.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Type != domain.TokenTypeRefresh || claims.FamilyID == "" || claims.ID == "" {
		return nil, ErrMalformedCredential.WithMessage("not a refresh token")
	}
	if current != nil {
		if _, err := checkIssue(claims.Subject, claims.Scope, current.role, current.tenantID); err != nil {
			return nil, err
		}
	}

	now := tm.now()
	nextJTI := ids.NewAt(now)
	result, err := tm.families.Advance(ctx, claims.FamilyID, claims.ID, nextJTI)
	if err != nil {
		return nil, ErrCredentialStoreUnavailable.Wrap(err)
	}
	switch result {
	case FamilyAdvanced:
	case FamilyStale:
		if err := tm.families.Revoke(ctx, claims.FamilyID); err != nil {
			return nil, ErrCredentialStoreUnavailable.Wrap(err)
		}
		if tm.onReuse != nil {
			tm.onReuse(ctx, claims.FamilyID, claims.Subject)
		}
		return nil, ErrRevokedCredential.WithMessage("refresh token reuse detected; session revoked")
	default:
		return nil, ErrRevokedCredential
	}

	role, tenantID := claims.Role, claims.TenantID
	if current != nil {
		role, tenantID = current.role, current.tenantID
	}
	access, err := tm.IssueAccessToken(claims.Subject, claims.Scope, role, tenantID)
	if err != nil {
		return nil, err
	}
	refresh, err := tm.signRefresh(claims.Subject, claims.Scope, role, tenantID, claims.FamilyID, nextJTI, claims.SessionStart.Time, now)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh, FamilyID: claims.FamilyID}, nil
}

// RevokeFamily invalidates every refresh token of familyID.
func (tm *TokenManager) RevokeFamily(ctx context.Context, familyID string) error {
	if familyID == "" {
		return nil
	}
	if err := tm.families.Revoke(ctx, familyID); err != nil {
		return ErrCredentialStoreUnavailable.Wrap(err)
	}
	return nil
}

// AbsoluteSessionTimeout returns the configured session ceiling.
func (tm *TokenManager) AbsoluteSessionTimeout() time.Duration {
	return tm.absolute
}

func (tm *TokenManager) signRefresh(subject string, scope domain.Scope, role, tenantID, familyID, jti string, sessionStart, now time.Time) (*Token, error) {
	exp := now.Add(tm.refreshTTL)
	if ceiling := sessionStart.Add(tm.absolute); ceiling.Before(exp) {
		exp = ceiling
	}
	claims := &Claims{
		Scope:            scope,
		Role:             role,
		TenantID:         tenantID,
		Type:             domain.TokenTypeRefresh,
		FamilyID:         familyID,
		SessionStart:     jwt.NewNumericDate(sessionStart),
		RegisteredClaims: tm.registered(subject, now, exp),
	}
	claims.ID = jti
	// Facility refresh tokens have always been issued without a scope claim.
	if scope == domain.ScopeFacility {
		claims.Scope = ""
	}
	return tm.sign(claims)
}

func (tm *TokenManager) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    tm.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        ids.NewAt(now),
	}
}

func (tm *TokenManager) sign(claims *Claims) (*Token, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	value, err := token.SignedString(tm.secret)
	if err != nil {
		return nil, err
	}
	// Callers see the same defaulted view Verify would produce.
	if claims.Scope == "" {
		claims.Scope = domain.ScopeFacility
	}
	return &Token{Value: value, Claims: claims, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func (tm *TokenManager) validate(claims *Claims) error {
	now := tm.now()
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return ErrMalformedCredential.WithMessage("token subject missing")
	}
	if tm.issuer != "" && claims.Issuer != tm.issuer {
		return ErrMalformedCredential.WithMessage("unexpected token issuer")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return ErrMalformedCredential.WithMessage("token timestamps missing")
	}
	if claims.IssuedAt.Time.After(now.Add(issuedAtSkew)) {
		return ErrMalformedCredential.WithMessage("token issued in the future")
	}

	if claims.Scope == "" {
		claims.Scope = domain.ScopeFacility
	}
	if !claims.Scope.Valid() {
		return ErrMalformedCredential.WithMessage("unknown token scope")
	}
	if claims.Scope.TenantBound() != (claims.TenantID != "") {
		return ErrMalformedCredential.WithMessage("token tenant binding does not match scope")
	}

	switch claims.Type {
	case domain.TokenTypeAccess:
	case domain.TokenTypeRefresh:
		if claims.SessionStart == nil || claims.FamilyID == "" {
			return ErrMalformedCredential.WithMessage("refresh token session missing")
		}
		if now.Sub(claims.SessionStart.Time) > tm.absolute {
			return ErrSessionTimeoutExceeded
		}
	default:
		return ErrMalformedCredential.WithMessage("unknown token type")
	}

	if !now.Before(claims.ExpiresAt.Time) {
		return ErrExpiredCredential
	}
	return nil
}

func checkIssue(subject string, scope domain.Scope, role, tenantID string) ([]string, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, ErrInvalidInput.WithMessage("subject required")
	}
	if !scope.Valid() {
		return nil, ErrInvalidInput.WithMessage("unknown scope " + string(scope))
	}
	if scope.TenantBound() && tenantID == "" {
		return nil, ErrInvalidInput.WithMessage(string(scope) + " tokens require a tenant")
	}
	if !scope.TenantBound() && tenantID != "" {
		return nil, ErrInvalidInput.WithMessage("platform tokens cannot be tenant-bound")
	}
	return PermissionsFor(scope, role)
}

// IsCredentialError reports whether err is a client-side credential outcome rather
// than an infrastructure failure.
func IsCredentialError(err error) bool {
	for _, sentinel := range []error{
		ErrNoCredential, ErrMalformedCredential, ErrExpiredCredential, ErrRevokedCredential,
		ErrSessionTimeoutExceeded, ErrInvalidCredential,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
