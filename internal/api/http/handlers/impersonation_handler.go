package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/gymstack/facility-auth/internal/api/dto"
	"github.com/gymstack/facility-auth/internal/auth"
	"github.com/gymstack/facility-auth/internal/gate"
	"github.com/gymstack/facility-auth/internal/impersonation"
)

// ImpersonationHandler exposes the platform support impersonation workflow.
type ImpersonationHandler struct {
	manager *impersonation.Manager
}

// NewImpersonationHandler constructs handler.
func NewImpersonationHandler(manager *impersonation.Manager) *ImpersonationHandler {
	return &ImpersonationHandler{manager: manager}
}

// Start handles POST /platform/impersonation.
func (h *ImpersonationHandler) Start(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	var req dto.StartImpersonationRequest
	if err := c.BodyParser(&req); err != nil {
		return auth.ErrInvalidInput.WithMessage("invalid payload")
	}
	_, result, err := h.manager.Start(c.UserContext(), impersonation.StartInput{
		ImpersonatorID: principal.ID,
		TargetUserID:   req.TargetUserID,
		TargetTenantID: req.TargetTenantID,
		Reason:         req.Reason,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.StartImpersonationResponse{
			Session: dto.NewImpersonationSessionResponse(result.Session),
			Auth:    dto.NewAccessOnlyResponse(result.Token),
		},
	})
}

// End handles POST /platform/impersonation/end.
func (h *ImpersonationHandler) End(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	_, session, err := h.manager.End(c.UserContext(), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewImpersonationSessionResponse(session)})
}

// Active handles GET /platform/impersonation/active. Data is null when no
// session is open.
func (h *ImpersonationHandler) Active(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	session, err := h.manager.ActiveSession(c.UserContext(), principal.ID)
	if err != nil {
		return err
	}
	if session == nil {
		return c.JSON(fiber.Map{"data": nil})
	}
	return c.JSON(fiber.Map{"data": dto.NewImpersonationSessionResponse(session)})
}

// History handles GET /platform/impersonation/history?limit=N.
func (h *ImpersonationHandler) History(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	sessions, err := h.manager.History(c.UserContext(), principal.ID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewImpersonationSessionList(sessions)})
}

// ListActive handles GET /platform/impersonation/sessions.
func (h *ImpersonationHandler) ListActive(c *fiber.Ctx) error {
	sessions, err := h.manager.ListActive(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewImpersonationSessionList(sessions)})
}

// Get handles GET /platform/impersonation/:id.
func (h *ImpersonationHandler) Get(c *fiber.Ctx) error {
	session, err := h.manager.Session(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewImpersonationSessionResponse(session)})
}

// ForceEnd handles POST /platform/impersonation/:id/force-end.
func (h *ImpersonationHandler) ForceEnd(c *fiber.Ctx) error {
	principal, ok := gate.Principal(c)
	if !ok {
		return auth.ErrNoCredential
	}
	session, err := h.manager.ForceEnd(c.UserContext(), c.Params("id"), principal.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewImpersonationSessionResponse(session)})
}

// Verify handles GET /platform/impersonation/:id/verify.
func (h *ImpersonationHandler) Verify(c *fiber.Ctx) error {
	report, err := h.manager.VerifyActionLog(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChainReportResponse(report)})
}
