package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gymstack/facility-auth/internal/api/dto"
	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/domain"
	"github.com/gymstack/facility-auth/internal/gate"
	"github.com/gymstack/facility-auth/internal/service"
)

// AuthHandler exposes login, refresh and logout for every account class.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /auth/login for facility, client and trainer accounts.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidInput.WithMessage("invalid payload")
	}
	scope := domain.Scope(strings.ToLower(strings.TrimSpace(req.Scope)))
	if scope == "" {
		scope = domain.ScopeFacility
	}
	if scope == domain.ScopePlatform {
		return auth.ErrScopeMismatch.WithMessage("platform accounts sign in at /platform/auth/login")
	}
	return h.login(c, service.LoginInput{
		Scope:    scope,
		TenantID: strings.TrimSpace(req.TenantID),
		Email:    req.Email,
		Password: req.Password,
	})
}

// PlatformLogin handles POST /platform/auth/login.
func (h *AuthHandler) PlatformLogin(c *fiber.Ctx) error {
	var req dto.PlatformLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidInput.WithMessage("invalid payload")
	}
	return h.login(c, service.LoginInput{Scope: domain.ScopePlatform, Email: req.Email, Password: req.Password})
}

func (h *AuthHandler) login(c *fiber.Ctx, in service.LoginInput) error {
	account, pair, err := h.auth.Login(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"account": dto.NewAccountResponse(account),
			"auth":    dto.NewTokenResponse(pair),
		},
	})
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req dto.RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidInput.WithMessage("invalid payload")
	}
	if req.RefreshToken == "" {
		return auth.ErrInvalidInput.WithMessage("refresh_token required")
	}
	pair, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"auth": dto.NewTokenResponse(pair)}})
}

// Logout handles POST /auth/logout. The body is optional.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	var req dto.LogoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return auth.ErrInvalidInput.WithMessage("invalid payload")
		}
	}
	if err := h.auth.Logout(c.UserContext(), principal, req.RefreshToken); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	account, err := h.auth.Me(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPrincipalResponse(principal, account)})
}
