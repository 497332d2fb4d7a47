package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-realtime/internal/api/dto"
	"github.com/spec-kit/helpdesk-realtime/internal/service"
	apperrors "github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

// TicketsHandler serves ticket lifecycle endpoints.
type TicketsHandler struct {
	tickets    *service.TicketService
	status     *service.StatusService
	assignment *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, status *service.StatusService, assignment *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, status: status, assignment: assignment}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), session, service.TicketCreateInput{
		Priority:     req.Priority,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), session, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Transition POST /tickets/:id/status. A committed change answers 200 even
// when a follow-up step failed; those are listed as warnings.
func (h *TicketsHandler) Transition(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	result, err := h.status.Transition(c.UserContext(), session, service.TransitionInput{
		TicketID:       c.Params("id"),
		NewStatus:      req.Status,
		Note:           req.Note,
		ExpectedStatus: req.ExpectedStatus,
	})
	if err != nil {
		return err
	}

	resp := dto.TransitionResponse{
		Ticket:             ticketResponse(&result.Ticket),
		History:            historyResponse(result.History),
		NotificationQueued: result.NotificationQueued,
	}
	if result.SystemMessage != nil {
		msg := messageResponse(result.SystemMessage, "")
		resp.SystemMessage = &msg
	}
	if result.MessageErr != nil {
		resp.Warnings = append(resp.Warnings, "system message not recorded")
	}
	if result.NotificationErr != nil {
		resp.Warnings = append(resp.Warnings, "creator notification not queued")
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Reassign POST /tickets/:id/assignee.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	var req dto.ReassignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.assignment.Reassign(c.UserContext(), session, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	entries, err := h.status.History(c.UserContext(), session, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(entries)})
}

// FeedbackEligibility GET /tickets/:id/feedback-eligibility.
func (h *TicketsHandler) FeedbackEligibility(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	eligible, err := h.status.FeedbackEligible(c.UserContext(), session, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FeedbackEligibilityResponse{Eligible: eligible}})
}
