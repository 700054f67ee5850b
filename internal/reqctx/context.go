// Package reqctx carries the per-request tenant and impersonation slots on a
// context.Context. Values are immutable; every setter derives a new context, so a
// request's state disappears with the request's context.
package reqctx

import (
	"context"

	"github.com/gymstack/facility-auth/internal/domain"
)

type ctxKey struct{}

// State is the set of request-scoped slots readable by business logic.
type State struct {
	Principal            *domain.Principal
	RequestID            string
	TenantID             string
	PlatformMode         bool
	ActorID              string
	ImpersonatedUserID   string
	ImpersonatedTenantID string
	SessionID            string
}

// FromPrincipal derives the slots implied by an authenticated principal.
func FromPrincipal(p *domain.Principal, requestID string) *State {
	s := &State{Principal: p, RequestID: requestID}
	if p == nil {
		return s
	}
	if p.IsTenantBound() {
		s.TenantID = p.TenantID
	}
	if p.Scope == domain.ScopePlatform {
		s.PlatformMode = true
		s.ActorID = p.ID
	}
	if p.ActingAs {
		s.ActorID = p.ImpersonatorID
		s.ImpersonatedUserID = p.ID
		s.ImpersonatedTenantID = p.TenantID
		s.SessionID = p.ImpersonationSessionID
	}
	return s
}

// With returns ctx carrying a copy of s.
func With(ctx context.Context, s *State) context.Context {
	if s == nil {
		return context.WithValue(ctx, ctxKey{}, (*State)(nil))
	}
	cp := *s
	return context.WithValue(ctx, ctxKey{}, &cp)
}

// Clear returns ctx with every slot emptied, shadowing any parent state.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, (*State)(nil))
}

// From returns a copy of the state bound to ctx.
func From(ctx context.Context) (State, bool) {
	if ctx == nil {
		return State{}, false
	}
	s, ok := ctx.Value(ctxKey{}).(*State)
	if !ok || s == nil {
		return State{}, false
	}
	return *s, true
}

// WithImpersonation sets the impersonation slots for session.
func WithImpersonation(ctx context.Context, session *domain.ImpersonationSession) context.Context {
	s, _ := From(ctx)
	s.ActorID = session.ImpersonatorID
	s.ImpersonatedUserID = session.TargetUserID
	s.ImpersonatedTenantID = session.TargetTenantID
	s.SessionID = session.ID
	return With(ctx, &s)
}

// WithoutImpersonation clears the impersonation slots, keeping the rest.
func WithoutImpersonation(ctx context.Context) context.Context {
	s, ok := From(ctx)
	if !ok {
		return ctx
	}
	s.ImpersonatedUserID = ""
	s.ImpersonatedTenantID = ""
	s.SessionID = ""
	if s.Principal != nil && s.Principal.ActingAs {
		s.ActorID = ""
		s.Principal = nil
	}
	return With(ctx, &s)
}

// Principal returns the authenticated principal, if any.
func Principal(ctx context.Context) *domain.Principal {
	s, _ := From(ctx)
	return s.Principal
}

// CurrentTenantID returns the tenant the request resolves work against.
func CurrentTenantID(ctx context.Context) string {
	s, _ := From(ctx)
	if s.ImpersonatedTenantID != "" {
		return s.ImpersonatedTenantID
	}
	return s.TenantID
}

// IsPlatformMode reports whether a platform actor originated the request.
func IsPlatformMode(ctx context.Context) bool {
	s, _ := From(ctx)
	return s.PlatformMode || s.ImpersonatedUserID != ""
}

// CurrentActorID returns the platform actor behind the request.
func CurrentActorID(ctx context.Context) string {
	s, _ := From(ctx)
	return s.ActorID
}

// IsImpersonating reports whether the request runs inside an impersonation session.
func IsImpersonating(ctx context.Context) bool {
	s, _ := From(ctx)
	return s.ImpersonatedUserID != ""
}

// ImpersonatedUserID returns the target user while impersonating.
func ImpersonatedUserID(ctx context.Context) string {
	s, _ := From(ctx)
	return s.ImpersonatedUserID
}

// ImpersonationSessionID returns the session the request belongs to.
func ImpersonationSessionID(ctx context.Context) string {
	s, _ := From(ctx)
	return s.SessionID
}

// RequestID returns the correlation id assigned by the transport.
func RequestID(ctx context.Context) string {
	s, _ := From(ctx)
	return s.RequestID
}
