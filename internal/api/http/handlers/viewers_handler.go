package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-realtime/internal/api/dto"
	"github.com/spec-kit/helpdesk-realtime/internal/service"
)

// ViewersHandler tracks who has a ticket open.
type ViewersHandler struct {
	service *service.ViewerService
}

// NewViewersHandler constructs handler.
func NewViewersHandler(viewerService *service.ViewerService) *ViewersHandler {
	return &ViewersHandler{service: viewerService}
}

// Enter POST /tickets/:id/viewers. Repeated calls refresh last_seen.
func (h *ViewersHandler) Enter(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	if err := h.service.Enter(c.UserContext(), session, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Leave DELETE /tickets/:id/viewers.
func (h *ViewersHandler) Leave(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	if err := h.service.Leave(c.UserContext(), session, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// List GET /tickets/:id/viewers.
func (h *ViewersHandler) List(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	viewers, err := h.service.Active(c.UserContext(), session, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ViewerResponse, 0, len(viewers))
	for _, v := range viewers {
		items = append(items, dto.ViewerResponse{UserID: v.UserID, LastSeen: v.LastSeen})
	}
	return c.JSON(fiber.Map{"data": items})
}
