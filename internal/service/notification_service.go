package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/repository"
	"github.com/spec-kit/helpdesk-realtime/internal/worker"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// TaskQueue accepts best-effort background work.
type TaskQueue interface {
	Enqueue(ctx context.Context, task worker.Task) error
}

// NotifyInput addresses one notification to one user.
type NotifyInput struct {
	UserID   string
	Title    string
	Body     string
	Type     domain.NotificationType
	TicketID *string
}

// NotificationService creates notification rows in the background and
// pushes them to the recipient's personal topic.
type NotificationService struct {
	repo    repository.NotificationRepository
	channel events.Channel
	queue   TaskQueue
	logger  *zap.Logger
}

// NotificationDependencies bundles collaborators.
type NotificationDependencies struct {
	Repo    repository.NotificationRepository
	Channel events.Channel
	Queue   TaskQueue
	Logger  *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &NotificationService{
		repo:    deps.Repo,
		channel: deps.Channel,
		queue:   deps.Queue,
		logger:  deps.Logger,
	}
}

// Notify enqueues the insert. The returned error only reports whether the
// task was accepted; the outcome of the insert is never surfaced.
func (n *NotificationService) Notify(ctx context.Context, input NotifyInput) (err error) {
	ctx, span := tracer.Start(ctx, "NotificationService.Notify",
		trace.WithAttributes(attribute.String("notification.type", string(input.Type))))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(input.UserID) == "" {
		return errorutil.NewValidationError("recipient required", nil)
	}
	if strings.TrimSpace(input.Title) == "" {
		return errorutil.NewValidationError("title required", nil)
	}
	notification := domain.Notification{
		UserID:   input.UserID,
		Title:    input.Title,
		Message:  input.Body,
		Type:     input.Type,
		TicketID: input.TicketID,
	}
	return n.queue.Enqueue(ctx, worker.Task{
		Name:    "notification." + string(input.Type),
		Payload: notification,
		Run: func(ctx context.Context) error {
			return n.deliver(ctx, notification)
		},
	})
}

func (n *NotificationService) deliver(ctx context.Context, notification domain.Notification) error {
	if err := n.repo.Create(ctx, &notification); err != nil {
		return err
	}
	if n.channel == nil {
		return nil
	}
	topic := events.NotificationsTopic(notification.UserID)
	if err := n.channel.Publish(ctx, topic, events.NewNotificationCreated(notification)); err != nil {
		n.logger.Warn("publish notification failed",
			zap.String("notification_id", notification.ID),
			zap.String("user_id", notification.UserID),
			zap.Error(err))
	}
	return nil
}

// List returns the caller's notifications, newest first.
func (n *NotificationService) List(ctx context.Context, session domain.Session, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	items, err := n.repo.ListByUser(ctx, session.EffectiveUserID, unreadOnly, limit)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return items, nil
}

// MarkRead marks one of the caller's own notifications as read.
func (n *NotificationService) MarkRead(ctx context.Context, session domain.Session, id string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if !isUUID(id) {
		return errorutil.NewNotFound("notification", map[string]any{"notification_id": id})
	}
	ok, err := n.repo.MarkRead(ctx, id, session.EffectiveUserID)
	if err != nil {
		return errorutil.NewInternalError(err)
	}
	if !ok {
		return errorutil.NewNotFound("notification", map[string]any{"notification_id": id})
	}
	return nil
}

// MarkAllRead marks every unread notification of the caller as read.
func (n *NotificationService) MarkAllRead(ctx context.Context, session domain.Session) (int64, error) {
	if err := requireSession(session); err != nil {
		return 0, err
	}
	count, err := n.repo.MarkAllRead(ctx, session.EffectiveUserID)
	if err != nil {
		return 0, errorutil.NewInternalError(err)
	}
	return count, nil
}

// notifyBestEffort sends through notifier and logs a refused enqueue.
func notifyBestEffort(ctx context.Context, notifier Notifier, logger *zap.Logger, input NotifyInput) error {
	if notifier == nil {
		return errors.New("notifier not configured")
	}
	err := notifier.Notify(ctx, input)
	if err != nil {
		logger.Warn("notification not queued",
			zap.String("user_id", input.UserID),
			zap.String("type", string(input.Type)),
			zap.Error(err))
	}
	return err
}
