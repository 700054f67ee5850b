package reqctx

import (
	"context"
	"testing"

	"github.com/gymstack/facility-auth/internal/domain"
)

func TestEmptyContextHasNoSlots(t *testing.T) {
	ctx := context.Background()
	if CurrentTenantID(ctx) != "" || IsImpersonating(ctx) || IsPlatformMode(ctx) || Principal(ctx) != nil {
		t.Fatalf("background context must expose empty slots")
	}
}

func TestFacilityPrincipalBindsTenant(t *testing.T) {
	p := &domain.Principal{ID: "staff-1", Scope: domain.ScopeFacility, TenantID: "gym-1"}
	ctx := With(context.Background(), FromPrincipal(p, "req-1"))
	if got := CurrentTenantID(ctx); got != "gym-1" {
		t.Fatalf("expected gym-1, got %q", got)
	}
	if IsPlatformMode(ctx) {
		t.Fatalf("facility request must not be platform mode")
	}
	if RequestID(ctx) != "req-1" {
		t.Fatalf("request id lost")
	}
}

func TestPlatformPrincipalIsNotTenantBound(t *testing.T) {
	p := &domain.Principal{ID: "admin-1", Scope: domain.ScopePlatform}
	ctx := With(context.Background(), FromPrincipal(p, ""))
	if CurrentTenantID(ctx) != "" {
		t.Fatalf("platform request must not carry a tenant")
	}
	if !IsPlatformMode(ctx) || CurrentActorID(ctx) != "admin-1" {
		t.Fatalf("platform slots not set")
	}
}

func TestImpersonationSlotsLifecycle(t *testing.T) {
	admin := &domain.Principal{ID: "admin-1", Scope: domain.ScopePlatform}
	ctx := With(context.Background(), FromPrincipal(admin, ""))
	session := &domain.ImpersonationSession{ID: "s-1", ImpersonatorID: "admin-1", TargetUserID: "u-1", TargetTenantID: "gym-2"}

	acting := WithImpersonation(ctx, session)
	if !IsImpersonating(acting) || ImpersonatedUserID(acting) != "u-1" || CurrentTenantID(acting) != "gym-2" {
		t.Fatalf("impersonation slots not set")
	}
	if IsImpersonating(ctx) {
		t.Fatalf("parent context must be unaffected")
	}

	ended := WithoutImpersonation(acting)
	if IsImpersonating(ended) || ImpersonationSessionID(ended) != "" {
		t.Fatalf("impersonation slots not cleared")
	}
	if CurrentActorID(ended) != "admin-1" {
		t.Fatalf("platform actor should survive end of impersonation")
	}
}

func TestImpersonationPrincipalSlots(t *testing.T) {
	p := &domain.Principal{
		ID: "u-1", Scope: domain.ScopeFacility, TenantID: "gym-2",
		ActingAs: true, ImpersonatorID: "admin-1", ImpersonationSessionID: "s-1",
	}
	ctx := With(context.Background(), FromPrincipal(p, ""))
	if !IsImpersonating(ctx) || CurrentActorID(ctx) != "admin-1" || ImpersonationSessionID(ctx) != "s-1" {
		t.Fatalf("acting-as principal slots not set")
	}
}

func TestClearShadowsParent(t *testing.T) {
	p := &domain.Principal{ID: "staff-1", Scope: domain.ScopeFacility, TenantID: "gym-1"}
	ctx := Clear(With(context.Background(), FromPrincipal(p, "")))
	if _, ok := From(ctx); ok {
		t.Fatalf("cleared context must not expose state")
	}
}
