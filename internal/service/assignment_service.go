package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

// AssignmentService handles ticket assignment operations.
type AssignmentService struct {
	tickets  repository.TicketRepository
	notifier Notifier
	channel  events.Channel
	logger   *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	TicketRepo repository.TicketRepository
	Notifier   Notifier
	Channel    events.Channel
	Logger     *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AssignmentService{
		tickets:  deps.TicketRepo,
		notifier: deps.Notifier,
		channel:  deps.Channel,
		logger:   deps.Logger,
	}
}

// Reassign sets the ticket's assignee; an empty assigneeID unassigns it.
// The new assignee is notified unless they assigned themselves.
func (s *AssignmentService) Reassign(ctx context.Context, session domain.Session, ticketID, assigneeID string) (*domain.Ticket, error) {
	if err := requireAssignPriv(session); err != nil {
		return nil, err
	}
	current, err := loadTicket(ctx, s.tickets, session, ticketID)
	if err != nil {
		return nil, err
	}
	var assignee *string
	if id := strings.TrimSpace(assigneeID); id != "" {
		assignee = &id
	}
	if sameAssignee(current.AssignedTo, assignee) {
		return current, nil
	}

	ticket, err := s.tickets.UpdateAssignee(ctx, ticketID, assignee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewInternalError(err)
	}

	if s.channel != nil {
		evt := events.NewTicketUpdated(*ticket, "", session.EffectiveUserID)
		if err := s.channel.Publish(ctx, events.TicketTopic(ticket.ID), evt); err != nil {
			s.logger.Warn("publish assignment failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if assignee != nil && *assignee != session.EffectiveUserID {
		ref := ticket.ID
		_ = notifyBestEffort(ctx, s.notifier, s.logger, NotifyInput{
			UserID:   *assignee,
			Title:    "Ticket assigned",
			Body:     fmt.Sprintf("Ticket #%d was assigned to you", ticket.Number),
			Type:     domain.NotificationTicketAssigned,
			TicketID: &ref,
		})
	}
	return ticket, nil
}

func requireAssignPriv(session domain.Session) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if !session.IsStaff() {
		return apperrors.NewForbidden("insufficient role for assignment")
	}
	return nil
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
