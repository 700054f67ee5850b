package gate

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/reqctx"
)

// Principal returns the principal bound by the gate.
func Principal(c *fiber.Ctx) (*domain.Principal, bool) {
	p := reqctx.Principal(c.UserContext())
	return p, p != nil
}

// RequireScope admits principals whose scope is one of scopes.
func RequireScope(scopes ...domain.Scope) fiber.Handler {
	allowed := make(map[domain.Scope]struct{}, len(scopes))
	for _, s := range scopes {
		allowed[s] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		p, ok := Principal(c)
		if !ok {
			return auth.ErrNoCredential
		}
		if _, ok := allowed[p.Scope]; !ok {
			return auth.ErrScopeMismatch
		}
		return c.Next()
	}
}

// RequirePermission admits principals holding perm.
func RequirePermission(perm string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := Principal(c)
		if !ok {
			return auth.ErrNoCredential
		}
		if !p.HasPermission(perm) {
			return auth.ErrInsufficientPermission.WithMessage("missing permission " + perm)
		}
		return c.Next()
	}
}

// RequireBearer rejects API key principals.
func RequireBearer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := Principal(c)
		if !ok {
			return auth.ErrNoCredential
		}
		if p.CredentialType != domain.CredentialBearer {
			return auth.ErrScopeMismatch.WithMessage("endpoint requires a user session")
		}
		return c.Next()
	}
}

// RequireTenantParam rejects tenant-bound principals addressing another tenant
// through the named route parameter.
func RequireTenantParam(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := Principal(c)
		if !ok {
			return auth.ErrNoCredential
		}
		if p.IsTenantBound() && c.Params(param) != p.TenantID {
			return auth.ErrTenantMismatch
		}
		return c.Next()
	}
}
