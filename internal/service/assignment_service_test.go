package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

func TestReassignNotifiesNewAssignee(t *testing.T) {
	c := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tickets := newFakeTickets(c)
	notifier := &fakeNotifier{}
	svc := NewAssignmentService(AssignmentDependencies{TicketRepo: tickets, Notifier: notifier})
	ticket := &domain.Ticket{Priority: domain.TicketPriorityMedium, CreatedBy: requester.UserID}
	_ = tickets.Create(context.Background(), ticket)
	admin := domain.NewSession("admin-1", domain.RoleAdmin)

	updated, err := svc.Reassign(context.Background(), admin, ticket.ID, agentA.UserID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if updated.AssignedTo == nil || *updated.AssignedTo != agentA.UserID {
		t.Fatalf("unexpected assignee %v", updated.AssignedTo)
	}
	sent := notifier.inputs()
	if len(sent) != 1 || sent[0].UserID != agentA.UserID || sent[0].Type != domain.NotificationTicketAssigned {
		t.Fatalf("unexpected notifications %+v", sent)
	}

	if _, err := svc.Reassign(context.Background(), admin, ticket.ID, agentA.UserID); err != nil {
		t.Fatalf("repeat reassign: %v", err)
	}
	if len(notifier.inputs()) != 1 {
		t.Fatal("unchanged assignee must not notify again")
	}
}

func TestReassignRequiresStaff(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	tickets := newFakeTickets(c)
	svc := NewAssignmentService(AssignmentDependencies{TicketRepo: tickets})
	ticket := &domain.Ticket{Priority: domain.TicketPriorityMedium, CreatedBy: requester.UserID}
	_ = tickets.Create(context.Background(), ticket)

	if _, err := svc.Reassign(context.Background(), requester, ticket.ID, agentA.UserID); !errorutil.IsCode(err, "FORBIDDEN") {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
}
