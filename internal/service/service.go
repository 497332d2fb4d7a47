package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/repository"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

var tracer = otel.Tracer("github.com/spec-kit/helpdesk-realtime/internal/service")

// Notifier queues one notification for one recipient.
type Notifier interface {
	Notify(ctx context.Context, input NotifyInput) error
}

func requireSession(session domain.Session) error {
	if session.EffectiveUserID == "" {
		return errorutil.NewUnauthorized("session required")
	}
	return nil
}

// canAccess reports whether session may see ticket. Staff see every
// ticket; requesters see tickets they created.
func canAccess(session domain.Session, ticket *domain.Ticket) bool {
	if session.IsStaff() {
		return true
	}
	return ticket.CreatedBy == session.EffectiveUserID
}

// loadTicket fetches the ticket and checks that session may act on it.
func loadTicket(ctx context.Context, tickets repository.TicketRepository, session domain.Session, ticketID string) (*domain.Ticket, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if ticketID == "" {
		return nil, errorutil.NewValidationError("ticket id required", nil)
	}
	if !isUUID(ticketID) {
		return nil, errorutil.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	ticket, err := tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errorutil.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, errorutil.NewInternalError(err)
	}
	if !canAccess(session, ticket) {
		return nil, errorutil.NewForbidden("access denied")
	}
	return ticket, nil
}

// isUUID reports whether id can name a stored row. Keys are uuid columns,
// so anything else cannot match and must not reach the database.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
