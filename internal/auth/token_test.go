package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/gymstack/facility-auth/internal/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, clock *fakeClock) *TokenManager {
	t.Helper()
	return NewTokenManager(TokenManagerConfig{
		Secret:                 testSecret,
		Issuer:                 "facility-auth-test",
		AccessTTL:              15 * time.Minute,
		RefreshTTL:             7 * 24 * time.Hour,
		AbsoluteSessionTimeout: 24 * time.Hour,
		Clock:                  clock.Now,
	})
}

func TestPlatformScopeSurvivesVerification(t *testing.T) {
	tm := newTestManager(t, newFakeClock())
	token, err := tm.IssueAccessToken("admin-1", domain.ScopePlatform, RolePlatformAdmin, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := tm.Verify(token.Value)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Scope != domain.ScopePlatform {
		t.Fatalf("expected platform scope, got %q", claims.Scope)
	}
	if claims.TenantID != "" {
		t.Fatalf("platform token must not carry a tenant, got %q", claims.TenantID)
	}
	principal := claims.Principal()
	if principal.IsTenantBound() {
		t.Fatalf("platform principal must not be tenant bound")
	}
	if !principal.HasPermission(PermImpersonationStart) {
		t.Fatalf("platform admin should hold %s", PermImpersonationStart)
	}
}

func TestMissingScopeDefaultsToFacility(t *testing.T) {
	clock := newFakeClock()
	tm := newTestManager(t, clock)
	now := clock.Now()
	claims := &Claims{
		Role:     RoleStaff,
		TenantID: "gym-1",
		Type:     domain.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "facility-auth-test",
			Subject:   "staff-1",
			ID:        "legacy-jti",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	verified, err := tm.Verify(raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Scope != domain.ScopeFacility {
		t.Fatalf("expected facility default, got %q", verified.Scope)
	}
}

func TestIssueRejectsBadTenantBinding(t *testing.T) {
	tm := newTestManager(t, newFakeClock())
	if _, err := tm.IssueAccessToken("staff-1", domain.ScopeFacility, RoleStaff, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("facility without tenant: expected invalid input, got %v", err)
	}
	if _, err := tm.IssueAccessToken("admin-1", domain.ScopePlatform, RolePlatformAdmin, "gym-1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("platform with tenant: expected invalid input, got %v", err)
	}
	if _, err := tm.IssueAccessToken("member-1", domain.ScopeClient, RoleStaff, "gym-1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("role outside scope: expected invalid input, got %v", err)
	}
}

func TestVerifyRejectsTamperedAndForeignTokens(t *testing.T) {
	tm := newTestManager(t, newFakeClock())
	token, err := tm.IssueAccessToken("staff-1", domain.ScopeFacility, RoleStaff, "gym-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(token.Value, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	if _, err := tm.Verify(strings.Join(parts, ".")); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("expected malformed for bad signature, got %v", err)
	}
	if _, err := tm.Verify("not-a-jwt"); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("expected malformed for garbage, got %v", err)
	}

	other := NewTokenManager(TokenManagerConfig{Secret: testSecret, Issuer: "someone-else"})
	foreign, err := other.IssueAccessToken("staff-1", domain.ScopeFacility, RoleStaff, "gym-1")
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}
	if _, err := tm.Verify(foreign.Value); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("expected malformed for foreign issuer, got %v", err)
	}
}

func TestAccessTokenExpires(t *testing.T) {
	clock := newFakeClock()
	tm := newTestManager(t, clock)
	token, err := tm.IssueAccessToken("staff-1", domain.ScopeFacility, RoleStaff, "gym-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	clock.Advance(15*time.Minute - time.Second)
	if _, err := tm.VerifyAccess(token.Value); err != nil {
		t.Fatalf("expected valid token before expiry, got %v", err)
	}
	clock.Advance(time.Second)
	if _, err := tm.VerifyAccess(token.Value); !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	tm := newTestManager(t, newFakeClock())
	refresh, _, err := tm.IssueRefreshToken(context.Background(), "staff-1", domain.ScopeFacility, RoleStaff, "gym-1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := tm.VerifyAccess(refresh.Value); !errors.Is(err, ErrMalformedCredential) {
		t.Fatalf("expected malformed, got %v", err)
	}
}

func TestRotateReplayRevokesFamily(t *testing.T) {
	clock := newFakeClock()
	var reused string
	tm := NewTokenManager(TokenManagerConfig{
		Secret:                 testSecret,
		Issuer:                 "facility-auth-test",
		AbsoluteSessionTimeout: 24 * time.Hour,
		Clock:                  clock.Now,
		OnReuse: func(_ context.Context, familyID, _ string) {
			reused = familyID
		},
	})
	ctx := context.Background()

	pair, err := tm.IssueTokenPair(ctx, "staff-1", domain.ScopeFacility, RoleStaff, "gym-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	first := pair.Refresh.Value

	clock.Advance(time.Minute)
	rotated, err := tm.Rotate(ctx, first)
	if err != nil {
		t.Fatalf("first rotation: %v", err)
	}
	if rotated.FamilyID != pair.FamilyID {
		t.Fatalf("rotation must stay in family %s, got %s", pair.FamilyID, rotated.FamilyID)
	}
	if rotated.Access.Claims.TenantID != "gym-1" || rotated.Access.Claims.Role != RoleStaff {
		t.Fatalf("rotation lost identity: %+v", rotated.Access.Claims)
	}

	if _, err := tm.Rotate(ctx, first); !errors.Is(err, ErrRevokedCredential) {
		t.Fatalf("replay: expected revoked, got %v", err)
	}
	if reused != pair.FamilyID {
		t.Fatalf("expected reuse callback for %s, got %q", pair.FamilyID, reused)
	}
	if _, err := tm.Rotate(ctx, rotated.Refresh.Value); !errors.Is(err, ErrRevokedCredential) {
		t.Fatalf("latest token after reuse: expected revoked, got %v", err)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	tm := newTestManager(t, newFakeClock())
	ctx := context.Background()
	refresh, _, err := tm.IssueRefreshToken(ctx, "member-1", domain.ScopeClient, RoleMember, "gym-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tm.Rotate(ctx, refresh.Value); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", wins)
	}
}

func TestRefreshFailsAfterAbsoluteTimeout(t *testing.T) {
	clock := newFakeClock()
	tm := newTestManager(t, clock)
	ctx := context.Background()

	pair, err := tm.IssueTokenPair(ctx, "trainer-1", domain.ScopeTrainer, RoleTrainer, "gym-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sessionStart := pair.Refresh.Claims.SessionStart.Time

	current := pair.Refresh.Value
	for i := 0; i < 3; i++ {
		clock.Advance(6 * time.Hour)
		next, err := tm.Rotate(ctx, current)
		if err != nil {
			t.Fatalf("rotation %d: %v", i, err)
		}
		if !next.Refresh.Claims.SessionStart.Time.Equal(sessionStart) {
			t.Fatalf("session start must be preserved across rotation")
		}
		current = next.Refresh.Value
	}

	clock.Advance(sessionStart.Add(24*time.Hour + time.Second).Sub(clock.Now()))
	if _, err := tm.Rotate(ctx, current); !errors.Is(err, ErrSessionTimeoutExceeded) {
		t.Fatalf("expected session timeout, got %v", err)
	}
}

func TestRefreshExpiryCappedBySessionCeiling(t *testing.T) {
	clock := newFakeClock()
	tm := newTestManager(t, clock)
	refresh, _, err := tm.IssueRefreshToken(context.Background(), "staff-1", domain.ScopeFacility, RoleStaff, "gym-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ceiling := clock.Now().Add(24 * time.Hour)
	if refresh.ExpiresAt.After(ceiling) {
		t.Fatalf("refresh expiry %s beyond session ceiling %s", refresh.ExpiresAt, ceiling)
	}
}

func TestFacilityRefreshTokenOmitsScopeClaim(t *testing.T) {
	tm := newTestManager(t, newFakeClock())
	refresh, _, err := tm.IssueRefreshToken(context.Background(), "staff-1", domain.ScopeFacility, RoleStaff, "gym-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	raw := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(refresh.Value, raw); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if raw.Scope != "" {
		t.Fatalf("expected no scope claim, got %q", raw.Scope)
	}
	verified, err := tm.Verify(refresh.Value)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Scope != domain.ScopeFacility {
		t.Fatalf("expected facility default, got %q", verified.Scope)
	}
}

func TestRevokeFamilyBlocksRotation(t *testing.T) {
	tm := newTestManager(t, newFakeClock())
	ctx := context.Background()
	pair, err := tm.IssueTokenPair(ctx, "staff-1", domain.ScopeFacility, RoleStaff, "gym-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := tm.RevokeFamily(ctx, pair.FamilyID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := tm.Rotate(ctx, pair.Refresh.Value); !errors.Is(err, ErrRevokedCredential) {
		t.Fatalf("expected revoked, got %v", err)
	}
}

func TestImpersonationTokenBoundToSession(t *testing.T) {
	clock := newFakeClock()
	tm := newTestManager(t, clock)
	session := &domain.ImpersonationSession{
		ID:             "sess-1",
		ImpersonatorID: "admin-1",
		TargetUserID:   "staff-9",
		TargetTenantID: "gym-7",
		TargetRole:     RoleClubAdmin,
		StartedAt:      clock.Now(),
		ExpiresAt:      clock.Now().Add(5 * time.Minute),
	}
	token, err := tm.IssueImpersonationToken(session)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !token.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("expected expiry %s, got %s", session.ExpiresAt, token.ExpiresAt)
	}
	claims, err := tm.VerifyAccess(token.Value)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	principal := claims.Principal()
	if !principal.ActingAs || principal.ImpersonatorID != "admin-1" || principal.ImpersonationSessionID != "sess-1" {
		t.Fatalf("impersonation markers missing: %+v", principal)
	}
	if principal.TenantID != "gym-7" || principal.Scope != domain.ScopeFacility {
		t.Fatalf("unexpected target binding: %+v", principal)
	}
}

func TestImpersonationTokenOutlivesAccessTTL(t *testing.T) {
	clock := newFakeClock()
	tm := newTestManager(t, clock)
	session := &domain.ImpersonationSession{
		ID:             "sess-2",
		ImpersonatorID: "admin-1",
		TargetUserID:   "staff-9",
		TargetTenantID: "gym-7",
		TargetRole:     RoleClubAdmin,
		StartedAt:      clock.Now(),
		ExpiresAt:      clock.Now().Add(time.Hour),
	}
	token, err := tm.IssueImpersonationToken(session)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !token.ExpiresAt.Equal(session.ExpiresAt) {
		t.Fatalf("expected expiry %s, got %s", session.ExpiresAt, token.ExpiresAt)
	}

	clock.Advance(40 * time.Minute)
	if _, err := tm.VerifyAccess(token.Value); err != nil {
		t.Fatalf("token should stay valid while the session runs: %v", err)
	}

	clock.Advance(21 * time.Minute)
	if _, err := tm.VerifyAccess(token.Value); !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected expired after session end, got %v", err)
	}
	if _, err := tm.IssueImpersonationToken(session); !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected no token for an expired session, got %v", err)
	}
}

func TestRotateForAppliesCurrentRole(t *testing.T) {
	clock := newFakeClock()
	tm := newTestManager(t, clock)
	ctx := context.Background()
	pair, err := tm.IssueTokenPair(ctx, "user-1", domain.ScopeFacility, RoleClubAdmin, "gym-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rotated, err := tm.RotateFor(ctx, pair.Refresh.Value, RoleStaff, "gym-1")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.Access.Claims.Role != RoleStaff || rotated.Refresh.Claims.Role != RoleStaff {
		t.Fatalf("rotation kept stale role: access=%s refresh=%s", rotated.Access.Claims.Role, rotated.Refresh.Claims.Role)
	}
	for _, perm := range rotated.Access.Claims.Permissions {
		if perm == PermAPIKeyManage {
			t.Fatalf("demoted subject still holds %s", perm)
		}
	}
	if _, err := tm.Rotate(ctx, pair.Refresh.Value); !errors.Is(err, ErrRevokedCredential) {
		t.Fatalf("replaying the old refresh token must still revoke, got %v", err)
	}
}

func TestMemoryRevocationListExpires(t *testing.T) {
	clock := newFakeClock()
	list := NewMemoryRevocationList(clock.Now)
	ctx := context.Background()
	if err := list.Revoke(ctx, "jti-1", clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := list.IsRevoked(ctx, "jti-1"); !revoked {
		t.Fatalf("expected jti-1 revoked")
	}
	clock.Advance(time.Minute)
	if revoked, _ := list.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatalf("expected revocation entry to lapse with the token")
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong horse"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if err := CheckPassword("", "anything"); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected invalid credential for empty hash, got %v", err)
	}
	if _, err := HashPassword("short", 4); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected short password rejected, got %v", err)
	}
}
