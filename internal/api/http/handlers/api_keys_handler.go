package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gymstack/facility-auth/internal/api/dto"
	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/gate"
	"github.com/gymstack/facility-auth/internal/service"
)

// APIKeysHandler lets tenant admins manage integration keys of their own tenant.
type APIKeysHandler struct {
	keys *service.APIKeyService
}

// NewAPIKeysHandler constructs handler.
func NewAPIKeysHandler(keys *service.APIKeyService) *APIKeysHandler {
	return &APIKeysHandler{keys: keys}
}

// List handles GET /api/api-keys.
func (h *APIKeysHandler) List(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	keys, err := h.keys.List(c.UserContext(), principal)
	if err != nil {
		return err
	}
	out := make([]dto.APIKeyResponse, 0, len(keys))
	for i := range keys {
		out = append(out, dto.NewAPIKeyResponse(&keys[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// Create handles POST /api/api-keys.
func (h *APIKeysHandler) Create(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	var req dto.CreateAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidInput.WithMessage("invalid payload")
	}
	key, plaintext, err := h.keys.Create(c.UserContext(), principal, req.ToInput())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.CreatedAPIKeyResponse{APIKeyResponse: dto.NewAPIKeyResponse(key), Key: plaintext},
	})
}

// Revoke handles DELETE /api/api-keys/:id.
func (h *APIKeysHandler) Revoke(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	if err := h.keys.Revoke(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
