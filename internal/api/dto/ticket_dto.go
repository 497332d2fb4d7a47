package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Priority     domain.TicketPriority `json:"priority"`
	DepartmentID *string               `json:"department_id"`
}

// TicketResponse is the ticket row as exposed over HTTP.
type TicketResponse struct {
	ID           string                `json:"id"`
	Number       int64                 `json:"ticket_number"`
	Status       domain.TicketStatus   `json:"status"`
	StatusLabel  string                `json:"status_label"`
	Priority     domain.TicketPriority `json:"priority"`
	CreatedBy    string                `json:"created_by"`
	AssignedTo   *string               `json:"assigned_to"`
	DepartmentID *string               `json:"department_id"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	ResolvedAt   *time.Time            `json:"resolved_at"`
	ClosedAt     *time.Time            `json:"closed_at"`
}

// TransitionRequest payload for POST /tickets/:id/status.
type TransitionRequest struct {
	Status         domain.TicketStatus  `json:"status"`
	Note           string               `json:"note"`
	ExpectedStatus *domain.TicketStatus `json:"expected_status"`
}

// TransitionResponse reports the committed transition. Warnings list the
// follow-up steps that failed after the commit.
type TransitionResponse struct {
	Ticket             TicketResponse   `json:"ticket"`
	History            HistoryResponse  `json:"history"`
	SystemMessage      *MessageResponse `json:"system_message,omitempty"`
	NotificationQueued bool             `json:"notification_queued"`
	Warnings           []string         `json:"warnings,omitempty"`
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	ID        string               `json:"id"`
	OldStatus *domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus  `json:"new_status"`
	ChangedBy string               `json:"changed_by"`
	Notes     *string              `json:"notes"`
	CreatedAt time.Time            `json:"created_at"`
}

// ReassignRequest payload. An empty assignee unassigns the ticket.
type ReassignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// FeedbackEligibilityResponse answers whether the survey prompt applies.
type FeedbackEligibilityResponse struct {
	Eligible bool `json:"eligible"`
}
