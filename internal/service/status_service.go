package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/observability"
	"github.com/spec-kit/helpdesk-realtime/internal/repository"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

const maxNoteLength = 2000

// TransitionInput is one requested status change. ExpectedStatus, when
// set, must match the stored status or the change is rejected as stale.
type TransitionInput struct {
	TicketID       string
	NewStatus      domain.TicketStatus
	Note           string
	ExpectedStatus *domain.TicketStatus
}

// TransitionResult reports a committed transition together with the
// outcome of its follow-up effects. The history row and the status update
// either both committed or Transition returned an error.
type TransitionResult struct {
	Ticket             domain.Ticket
	History            domain.TicketStatusHistory
	SystemMessage      *domain.TicketMessage
	MessageErr         error
	NotificationQueued bool
	NotificationErr    error
}

// Partial reports whether a follow-up effect failed after the commit.
func (r TransitionResult) Partial() bool {
	return r.MessageErr != nil || r.NotificationErr != nil
}

// StatusService runs the ticket status state machine.
type StatusService struct {
	tickets  repository.TicketRepository
	history  repository.TicketHistoryRepository
	messages repository.TicketMessageRepository
	surveys  repository.SurveyRepository
	notifier Notifier
	channel  events.Channel
	policy   TransitionPolicy
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// StatusDependencies bundles collaborators for StatusService.
type StatusDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	MessageRepo repository.TicketMessageRepository
	SurveyRepo  repository.SurveyRepository
	Notifier    Notifier
	Channel     events.Channel
	Policy      TransitionPolicy
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// NewStatusService constructs the service. Without a policy the status
// graph is enforced.
func NewStatusService(deps StatusDependencies) *StatusService {
	if deps.Policy == nil {
		deps.Policy = GraphPolicy{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &StatusService{
		tickets:  deps.TicketRepo,
		history:  deps.HistoryRepo,
		messages: deps.MessageRepo,
		surveys:  deps.SurveyRepo,
		notifier: deps.Notifier,
		channel:  deps.Channel,
		policy:   deps.Policy,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
}

// Transition moves the ticket to input.NewStatus, records the history
// row, then appends a system message, notifies the creator and publishes
// the change. Only the status write decides the error return.
func (s *StatusService) Transition(ctx context.Context, session domain.Session, input TransitionInput) (result TransitionResult, err error) {
	ctx, span := tracer.Start(ctx, "StatusService.Transition", trace.WithAttributes(
		attribute.String("ticket.id", input.TicketID),
		attribute.String("ticket.new_status", string(input.NewStatus)),
	))
	defer func() { endSpan(span, err) }()

	if err := requireSession(session); err != nil {
		return result, err
	}
	if !input.NewStatus.Valid() {
		return result, errorutil.NewValidationError("unknown status", map[string]any{"status": input.NewStatus})
	}
	if input.ExpectedStatus != nil && !input.ExpectedStatus.Valid() {
		return result, errorutil.NewValidationError("unknown expected status", map[string]any{"expected_status": *input.ExpectedStatus})
	}
	note := strings.TrimSpace(input.Note)
	if len(note) > maxNoteLength {
		return result, errorutil.NewValidationError("note too long", map[string]any{"max": maxNoteLength})
	}
	if _, err := loadTicket(ctx, s.tickets, session, input.TicketID); err != nil {
		return result, err
	}

	record := repository.TransitionRecord{
		TicketID:  input.TicketID,
		Expected:  input.ExpectedStatus,
		NewStatus: input.NewStatus,
		ChangedBy: session.EffectiveUserID,
		Allow: func(current, next domain.TicketStatus) error {
			return s.policy.Check(session, current, next)
		},
	}
	if note != "" {
		record.Notes = &note
	}
	ticket, history, err := s.tickets.ApplyTransition(ctx, record)
	if err != nil {
		s.metrics.Transition(string(input.NewStatus), "rejected")
		return result, s.transitionError(input, err)
	}
	s.metrics.Transition(string(input.NewStatus), "applied")

	result.Ticket = *ticket
	result.History = *history
	var oldStatus domain.TicketStatus
	if history.OldStatus != nil {
		oldStatus = *history.OldStatus
	}
	s.publish(ctx, ticket.ID, events.NewTicketUpdated(*ticket, oldStatus, session.EffectiveUserID))

	msg := &domain.TicketMessage{
		TicketID:        ticket.ID,
		Body:            describeTransition(oldStatus, ticket.Status, note),
		IsSystemMessage: true,
		Status:          domain.MessageStatusSent,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		result.MessageErr = err
		s.logger.Warn("system message not recorded",
			zap.String("ticket_id", ticket.ID),
			zap.Error(err))
	} else {
		result.SystemMessage = msg
		s.publish(ctx, ticket.ID, events.NewMessageInserted(*msg))
	}

	if ticket.CreatedBy != session.EffectiveUserID {
		ticketID := ticket.ID
		result.NotificationErr = notifyBestEffort(ctx, s.notifier, s.logger, NotifyInput{
			UserID:   ticket.CreatedBy,
			Title:    "Ticket updated",
			Body:     fmt.Sprintf("Ticket #%d is now %s", ticket.Number, ticket.Status.Label()),
			Type:     domain.NotificationTicketUpdated,
			TicketID: &ticketID,
		})
		result.NotificationQueued = result.NotificationErr == nil
	}
	return result, nil
}

func (s *StatusService) transitionError(input TransitionInput, err error) error {
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		details := map[string]any{"ticket_id": input.TicketID}
		if input.ExpectedStatus != nil {
			details["expected_status"] = *input.ExpectedStatus
		}
		return errorutil.NewConflict("ticket status changed concurrently", details)
	case errors.Is(err, pgx.ErrNoRows):
		return errorutil.NewNotFound("ticket", map[string]any{"ticket_id": input.TicketID})
	}
	return errorutil.ToDomainError(err)
}

func (s *StatusService) publish(ctx context.Context, ticketID string, event events.Event) {
	if s.channel == nil {
		return
	}
	if err := s.channel.Publish(ctx, events.TicketTopic(ticketID), event); err != nil {
		s.logger.Warn("publish ticket event failed",
			zap.String("ticket_id", ticketID),
			zap.String("kind", string(event.Kind())),
			zap.Error(err))
	}
}

// describeTransition renders the system message body for a status change.
func describeTransition(from, to domain.TicketStatus, note string) string {
	var text string
	if from == "" {
		text = fmt.Sprintf("Status set to %s", to.Label())
	} else {
		text = fmt.Sprintf("Status changed from %s to %s", from.Label(), to.Label())
	}
	if note != "" {
		text += ": " + note
	}
	return text
}

// History returns the ticket's transitions in creation order.
func (s *StatusService) History(ctx context.Context, session domain.Session, ticketID string) ([]domain.TicketStatusHistory, error) {
	if _, err := loadTicket(ctx, s.tickets, session, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return entries, nil
}

// FeedbackEligible reports whether the ticket awaits a satisfaction
// survey from the caller: it is resolved or closed and the caller has not
// answered yet.
func (s *StatusService) FeedbackEligible(ctx context.Context, session domain.Session, ticketID string) (bool, error) {
	ticket, err := loadTicket(ctx, s.tickets, session, ticketID)
	if err != nil {
		return false, err
	}
	if !ticket.Status.AwaitingFeedback() {
		return false, nil
	}
	answered, err := s.surveys.Exists(ctx, ticketID, session.EffectiveUserID)
	if err != nil {
		return false, errorutil.NewInternalError(err)
	}
	return !answered, nil
}
