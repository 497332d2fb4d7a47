package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/repository"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

// TicketService covers the ticket lifecycle outside status changes:
// opening a ticket and reading it back.
type TicketService struct {
	tickets repository.TicketRepository
	logger  *zap.Logger
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Logger     *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Priority     domain.TicketPriority
	DepartmentID *string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TicketService{tickets: deps.TicketRepo, logger: deps.Logger}
}

// CreateTicket opens a ticket for the caller in the open state.
func (s *TicketService) CreateTicket(ctx context.Context, session domain.Session, input TicketCreateInput) (*domain.Ticket, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, errorutil.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	var department *string
	if input.DepartmentID != nil {
		if id := strings.TrimSpace(*input.DepartmentID); id != "" {
			department = &id
		}
	}

	ticket := &domain.Ticket{
		Priority:     priority,
		CreatedBy:    session.EffectiveUserID,
		DepartmentID: department,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.Int64("ticket_number", ticket.Number),
		zap.String("created_by", ticket.CreatedBy))
	return ticket, nil
}

// GetTicket fetches a ticket the caller may see.
func (s *TicketService) GetTicket(ctx context.Context, session domain.Session, ticketID string) (*domain.Ticket, error) {
	return loadTicket(ctx, s.tickets, session, ticketID)
}
