package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/gymstack/facility-auth/internal/api/http/handlers"
	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/gate"
	"github.com/gymstack/facility-auth/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Auth          *handlers.AuthHandler
	APIKeys       *handlers.APIKeysHandler
	Impersonation *handlers.ImpersonationHandler
	Gate          *gate.Gate
	Metrics       *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authenticate := cfg.Gate.Handler()

	app.Post("/auth/login", cfg.Auth.Login)
	app.Post("/auth/refresh", cfg.Auth.Refresh)
	app.Post("/platform/auth/login", cfg.Auth.PlatformLogin)
	app.Post("/auth/logout", authenticate, gate.RequireBearer(), cfg.Auth.Logout)
	app.Get("/auth/me", authenticate, cfg.Auth.Me)

	keys := app.Group("/api/api-keys", authenticate, gate.RequireScope(domain.ScopeFacility))
	keys.Get("", gate.RequirePermission(auth.PermAPIKeyView), cfg.APIKeys.List)
	keys.Post("", gate.RequireBearer(), gate.RequirePermission(auth.PermAPIKeyManage), cfg.APIKeys.Create)
	keys.Delete("/:id", gate.RequireBearer(), gate.RequirePermission(auth.PermAPIKeyManage), cfg.APIKeys.Revoke)

	imp := app.Group("/platform/impersonation", authenticate, gate.RequireBearer(), gate.RequireScope(domain.ScopePlatform))
	imp.Post("", gate.RequirePermission(auth.PermImpersonationStart), cfg.Impersonation.Start)
	imp.Post("/end", cfg.Impersonation.End)
	imp.Get("/active", cfg.Impersonation.Active)
	imp.Get("/history", cfg.Impersonation.History)
	imp.Get("/sessions", gate.RequirePermission(auth.PermImpersonationView), cfg.Impersonation.ListActive)
	imp.Get("/:id", gate.RequirePermission(auth.PermImpersonationView), cfg.Impersonation.Get)
	imp.Get("/:id/verify", gate.RequirePermission(auth.PermImpersonationView), cfg.Impersonation.Verify)
	imp.Post("/:id/force-end", gate.RequirePermission(auth.PermImpersonationManage), cfg.Impersonation.ForceEnd)
}
