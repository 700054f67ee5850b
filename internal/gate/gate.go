// Package gate authenticates every inbound request and binds the resulting
// principal to the request context.
package gate

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gymstack/facility-auth/internal/apikey"
	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/events"
	"github.com/gymstack/facility-auth/internal/impersonation"
	"github.com/gymstack/facility-auth/internal/observability"
	"github.com/gymstack/facility-auth/internal/ratelimit"
	"github.com/gymstack/facility-auth/internal/reqctx"
)

// APIKeyHeader carries tenant integration keys.
const APIKeyHeader = "X-API-Key"

// Config wires a Gate. Revocations, Limiter, Metrics and Events are optional.
type Config struct {
	Tokens        *auth.TokenManager
	Revocations   auth.RevocationList
	APIKeys       *apikey.Authority
	Limiter       ratelimit.Limiter
	RateWindow    time.Duration
	Impersonation *impersonation.Manager
	Metrics       *observability.Metrics
	Events        events.Dispatcher
	Logger        *zap.Logger
}

// Gate is the request interceptor chain in front of business handlers.
type Gate struct {
	tokens      *auth.TokenManager
	revocations auth.RevocationList
	apiKeys     *apikey.Authority
	limiter     ratelimit.Limiter
	window      time.Duration
	imp         *impersonation.Manager
	metrics     *observability.Metrics
	events      events.Dispatcher
	logger      *zap.Logger
}

// New builds a Gate.
func New(cfg Config) *Gate {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &Gate{
		tokens:      cfg.Tokens,
		revocations: cfg.Revocations,
		apiKeys:     cfg.APIKeys,
		limiter:     cfg.Limiter,
		window:      cfg.RateWindow,
		imp:         cfg.Impersonation,
		metrics:     cfg.Metrics,
		events:      cfg.Events,
		logger:      cfg.Logger.Named("gate"),
	}
}

// Handler authenticates the request, binds the request context for the rest of
// the chain, and enforces read-only impersonation.
func (g *Gate) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		principal, err := g.authenticate(c)
		if err != nil {
			return err
		}

		observability.Annotate(c, string(principal.CredentialType), principal.TenantID)

		prev := c.UserContext()
		ctx := reqctx.With(prev, reqctx.FromPrincipal(principal, observability.RequestID(c)))
		c.SetUserContext(ctx)
		defer c.SetUserContext(prev)

		if reqctx.IsImpersonating(ctx) {
			entry := c.Method() + " " + c.Path()
			if isMutating(c.Method()) {
				g.logger.Warn("write blocked during impersonation",
					zap.String("impersonator_id", principal.ImpersonatorID),
					zap.String("session_id", principal.ImpersonationSessionID),
					zap.String("entry", entry),
				)
				events.Publish(ctx, g.events, g.logger, events.Event{
					Type:    events.EventImpersonationBlocked,
					Actor:   events.Actor{ID: principal.ImpersonatorID, Scope: string(domain.ScopePlatform)},
					Subject: principal.ID,
					Attrs:   map[string]string{"entry": entry, "session_id": principal.ImpersonationSessionID},
				})
				return auth.ErrImpersonationWriteBlocked
			}
			if g.imp != nil {
				g.imp.RecordAction(ctx, principal.ImpersonatorID, entry)
			}
		}
		return c.Next()
	}
}

func (g *Gate) authenticate(c *fiber.Ctx) (*domain.Principal, error) {
	ctx := c.UserContext()

	if header := c.Get(fiber.HeaderAuthorization); header != "" {
		principal, err := g.authenticateBearer(ctx, header)
		g.record(domain.CredentialBearer, err)
		return principal, err
	}

	if raw := c.Get(APIKeyHeader); raw != "" {
		principal, err := g.authenticateAPIKey(c, raw)
		g.record(domain.CredentialAPIKey, err)
		return principal, err
	}

	g.metrics.RecordAuth("none", "missing")
	return nil, auth.ErrNoCredential
}

func (g *Gate) authenticateBearer(ctx context.Context, header string) (*domain.Principal, error) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, auth.ErrMalformedCredential.WithMessage("authorization header must be a bearer token")
	}

	claims, err := g.tokens.VerifyAccess(token)
	if err != nil {
		return nil, err
	}

	if g.revocations != nil {
		revoked, err := g.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, auth.ErrCredentialStoreUnavailable.Wrap(err)
		}
		if revoked {
			return nil, auth.ErrRevokedCredential
		}
	}

	principal := claims.Principal()
	if principal.ActingAs {
		if g.imp == nil {
			return nil, auth.ErrRevokedCredential
		}
		session, err := g.imp.ActiveSession(ctx, principal.ImpersonatorID)
		if err != nil {
			return nil, auth.ErrCredentialStoreUnavailable.Wrap(err)
		}
		if session == nil || session.ID != principal.ImpersonationSessionID {
			return nil, auth.ErrRevokedCredential.WithMessage("impersonation session has ended")
		}
	}
	return principal, nil
}

func (g *Gate) authenticateAPIKey(c *fiber.Ctx, raw string) (*domain.Principal, error) {
	if g.apiKeys == nil {
		return nil, auth.ErrInvalidCredential
	}
	ctx := c.UserContext()
	principal, err := g.apiKeys.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, auth.ErrInvalidCredential.WithMessage("invalid api key")
	}

	if g.limiter != nil {
		decision, err := g.limiter.Allow(ctx, ratelimit.APIKeyBucket(principal.APIKeyID), principal.RateLimit, g.window)
		if err != nil {
			// An unavailable limiter must not take integrations down with it.
			g.logger.Warn("rate limiter unavailable; admitting request", zap.String("key_id", principal.APIKeyID), zap.Error(err))
			return principal, nil
		}
		setRateHeaders(c, decision)
		if !decision.Allowed {
			g.metrics.RecordRateLimited()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
			return nil, auth.ErrRateLimited
		}
	}
	return principal, nil
}

func (g *Gate) record(credential domain.CredentialType, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
		if !auth.IsCredentialError(err) {
			outcome = "error"
		}
	}
	g.metrics.RecordAuth(string(credential), outcome)
}

func setRateHeaders(c *fiber.Ctx, d ratelimit.Decision) {
	if d.Limit <= 0 {
		return
	}
	c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

// retryAfterSeconds rounds d up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

func isMutating(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}
