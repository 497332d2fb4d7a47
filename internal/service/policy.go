package service

import (
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

// TransitionPolicy decides whether session may move a ticket from
// current to next. It runs against the locked row inside the transition
// transaction.
type TransitionPolicy interface {
	Check(session domain.Session, current, next domain.TicketStatus) error
}

// GraphPolicy allows only the edges of the ticket status graph; closed
// is terminal.
type GraphPolicy struct{}

func (GraphPolicy) Check(_ domain.Session, current, next domain.TicketStatus) error {
	if !domain.CanTransition(current, next) {
		return errorutil.NewInvalidTransition(string(current), string(next))
	}
	return nil
}

// PermissivePolicy records any requested transition between known states.
type PermissivePolicy struct{}

func (PermissivePolicy) Check(_ domain.Session, _, next domain.TicketStatus) error {
	if !next.Valid() {
		return errorutil.NewValidationError("unknown status", map[string]any{"status": next})
	}
	return nil
}
