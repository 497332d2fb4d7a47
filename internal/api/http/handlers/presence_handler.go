package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-realtime/internal/api/dto"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/presence"
	apperrors "github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

// TicketGate resolves a ticket the session may see.
type TicketGate interface {
	GetTicket(ctx context.Context, session domain.Session, ticketID string) (*domain.Ticket, error)
}

// PresenceHandler accepts heartbeats from clients without a realtime
// connection and serves rosters.
type PresenceHandler struct {
	tracker *presence.Tracker
	tickets TicketGate
}

// NewPresenceHandler constructs handler.
func NewPresenceHandler(tracker *presence.Tracker, tickets TicketGate) *PresenceHandler {
	return &PresenceHandler{tracker: tracker, tickets: tickets}
}

// Heartbeat POST /presence/heartbeat.
func (h *PresenceHandler) Heartbeat(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	var req dto.HeartbeatRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if req.State == "" {
		req.State = domain.ActivityOnline
	}
	if !req.State.Valid() {
		return apperrors.NewValidationError("invalid state", map[string]any{"state": req.State})
	}
	scope, err := h.scope(c, session, req.TicketID)
	if err != nil {
		return err
	}
	if err := h.tracker.Heartbeat(c.UserContext(), session, scope, req.State); err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Online GET /presence/online[?ticket_id=].
func (h *PresenceHandler) Online(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	scope, err := h.scope(c, session, c.Query("ticket_id"))
	if err != nil {
		return err
	}
	roster, err := h.tracker.Roster(c.UserContext(), scope, session.EffectiveUserID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	users := make([]dto.PresenceUser, 0, len(roster.Others))
	for _, rec := range roster.Others {
		users = append(users, dto.PresenceUser{
			UserID:        rec.UserID,
			State:         rec.State,
			DisplayName:   rec.Profile.DisplayName,
			AvatarURL:     rec.Profile.AvatarURL,
			Role:          rec.Profile.Role,
			LastHeartbeat: rec.LastHeartbeat,
		})
	}
	return c.JSON(fiber.Map{"data": dto.RosterResponse{Scope: scope.Key(), Users: users, Total: roster.Total}})
}

func (h *PresenceHandler) scope(c *fiber.Ctx, session domain.Session, ticketID string) (domain.Scope, error) {
	if ticketID == "" {
		return domain.GlobalScope, nil
	}
	if h.tickets == nil {
		return domain.Scope{}, apperrors.NewValidationError("ticket presence is not available", nil)
	}
	if _, err := h.tickets.GetTicket(c.UserContext(), session, ticketID); err != nil {
		return domain.Scope{}, err
	}
	return domain.TicketScope(ticketID), nil
}
