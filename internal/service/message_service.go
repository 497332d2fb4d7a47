package service

import (
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/observability"
	"github.com/spec-kit/helpdesk-realtime/internal/repository"
	"github.com/spec-kit/helpdesk-realtime/internal/storage"
	"github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

const (
	maxMessageLength  = 10000
	maxVoiceClipBytes = 10 << 20
	previewLength     = 120
	maxAckBatch       = 200
)

// VoiceClip is recorded audio sent in place of a text body.
type VoiceClip struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentInput references a file already placed in storage.
type AttachmentInput struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// SendInput is one chat message. Exactly one of Body and Voice is set.
type SendInput struct {
	TicketID    string
	Body        string
	Voice       *VoiceClip
	Attachments []AttachmentInput
}

// MessageService is the ticket chat pipeline: send, delivery and read
// receipts, and the ordered thread.
type MessageService struct {
	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	attachments repository.AttachmentRepository
	blobs       storage.BlobStore
	notifier    Notifier
	channel     events.Channel
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// MessageDependencies bundles collaborators for MessageService. Blobs may
// be nil, in which case voice notes are refused.
type MessageDependencies struct {
	TicketRepo     repository.TicketRepository
	MessageRepo    repository.TicketMessageRepository
	AttachmentRepo repository.AttachmentRepository
	Blobs          storage.BlobStore
	Notifier       Notifier
	Channel        events.Channel
	Logger         *zap.Logger
	Metrics        *observability.Metrics
}

// NewMessageService constructs the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &MessageService{
		tickets:     deps.TicketRepo,
		messages:    deps.MessageRepo,
		attachments: deps.AttachmentRepo,
		blobs:       deps.Blobs,
		notifier:    deps.Notifier,
		channel:     deps.Channel,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
	}
}

// Send stores a message with status sent, links its attachments, publishes
// it on the ticket topic and notifies the other side of the ticket.
func (s *MessageService) Send(ctx context.Context, session domain.Session, input SendInput) (msg *domain.TicketMessage, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Send",
		trace.WithAttributes(attribute.String("ticket.id", input.TicketID)))
	defer func() { endSpan(span, err) }()

	body := strings.TrimSpace(input.Body)
	if err := validateSend(body, input); err != nil {
		return nil, err
	}
	ticket, err := loadTicket(ctx, s.tickets, session, input.TicketID)
	if err != nil {
		return nil, err
	}

	sender := session.EffectiveUserID
	msg = &domain.TicketMessage{
		TicketID: ticket.ID,
		SenderID: &sender,
		Body:     body,
		Status:   domain.MessageStatusSent,
	}
	if input.Voice != nil {
		key, err := s.storeVoice(ctx, ticket.ID, input.Voice)
		if err != nil {
			return nil, err
		}
		msg.VoiceNoteRef = &key
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		if msg.VoiceNoteRef != nil {
			s.discardVoice(ctx, *msg.VoiceNoteRef)
		}
		return nil, errorutil.NewInternalError(err)
	}
	s.saveAttachments(ctx, msg, input.Attachments)
	s.metrics.Messages("sent", 1)

	s.publish(ctx, ticket.ID, events.NewMessageInserted(*msg))

	if recipient := otherSide(ticket, sender); recipient != "" {
		ref := ticket.ID
		_ = notifyBestEffort(ctx, s.notifier, s.logger, NotifyInput{
			UserID:   recipient,
			Title:    "New message",
			Body:     preview(msg),
			Type:     domain.NotificationNewMessage,
			TicketID: &ref,
		})
	}
	return msg, nil
}

func validateSend(body string, input SendInput) error {
	switch {
	case body == "" && input.Voice == nil:
		return errorutil.NewValidationError("message body or voice note required", nil)
	case body != "" && input.Voice != nil:
		return errorutil.NewValidationError("message must carry either text or a voice note", nil)
	case utf8.RuneCountInString(body) > maxMessageLength:
		return errorutil.NewValidationError("message too long", map[string]any{"max": maxMessageLength})
	}
	if v := input.Voice; v != nil {
		if v.Body == nil || v.Size <= 0 {
			return errorutil.NewValidationError("voice note is empty", nil)
		}
		if v.Size > maxVoiceClipBytes {
			return errorutil.NewValidationError("voice note too large", map[string]any{"max_bytes": maxVoiceClipBytes})
		}
		if !strings.HasPrefix(v.ContentType, "audio/") {
			return errorutil.NewValidationError("voice note must be audio", map[string]any{"content_type": v.ContentType})
		}
	}
	for i, a := range input.Attachments {
		if strings.TrimSpace(a.StorageKey) == "" || strings.TrimSpace(a.FileName) == "" {
			return errorutil.NewValidationError("attachment requires storage key and file name", map[string]any{"index": i})
		}
		if a.SizeBytes < 0 {
			return errorutil.NewValidationError("attachment size must not be negative", map[string]any{"index": i})
		}
	}
	return nil
}

func (s *MessageService) storeVoice(ctx context.Context, ticketID string, clip *VoiceClip) (string, error) {
	if s.blobs == nil {
		return "", errorutil.NewValidationError("voice notes are not enabled", nil)
	}
	key := storage.VoiceNoteKey(ticketID, clip.ContentType)
	if err := s.blobs.Upload(ctx, key, clip.ContentType, clip.Body, clip.Size); err != nil {
		return "", errorutil.NewInternalError(err)
	}
	return key, nil
}

func (s *MessageService) discardVoice(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("orphaned voice note", zap.String("key", key), zap.Error(err))
	}
}

// saveAttachments links each attachment to msg on its own. A failed link
// is logged and left out of msg.Attachments.
func (s *MessageService) saveAttachments(ctx context.Context, msg *domain.TicketMessage, inputs []AttachmentInput) {
	for _, in := range inputs {
		ref := domain.AttachmentReference{
			TicketMessageID: msg.ID,
			StorageKey:      strings.TrimSpace(in.StorageKey),
			FileName:        strings.TrimSpace(in.FileName),
			MimeType:        in.MimeType,
			SizeBytes:       in.SizeBytes,
		}
		if err := s.attachments.Create(ctx, &ref); err != nil {
			s.logger.Warn("attachment not linked",
				zap.String("message_id", msg.ID),
				zap.String("file_name", ref.FileName),
				zap.Error(err))
			continue
		}
		msg.Attachments = append(msg.Attachments, ref)
	}
}

// otherSide picks who hears about a message: the assignee when the
// creator writes, the creator otherwise. Empty when that is the sender or
// nobody is assigned.
func otherSide(ticket *domain.Ticket, senderID string) string {
	var recipient string
	if senderID == ticket.CreatedBy {
		if ticket.AssignedTo != nil {
			recipient = *ticket.AssignedTo
		}
	} else {
		recipient = ticket.CreatedBy
	}
	if recipient == senderID {
		return ""
	}
	return recipient
}

func preview(msg *domain.TicketMessage) string {
	if msg.Body == "" {
		return "Voice message"
	}
	if utf8.RuneCountInString(msg.Body) <= previewLength {
		return msg.Body
	}
	runes := []rune(msg.Body)
	return string(runes[:previewLength]) + "…"
}

// MarkRead marks every message of the ticket not written by the caller as
// read and returns how many changed. A second call without new messages
// changes nothing and publishes nothing.
func (s *MessageService) MarkRead(ctx context.Context, session domain.Session, ticketID string) (count int, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.MarkRead",
		trace.WithAttributes(attribute.String("ticket.id", ticketID)))
	defer func() { endSpan(span, err) }()

	if _, err := loadTicket(ctx, s.tickets, session, ticketID); err != nil {
		return 0, err
	}
	ids, err := s.messages.MarkRead(ctx, ticketID, session.EffectiveUserID)
	if err != nil {
		return 0, errorutil.NewInternalError(err)
	}
	span.SetAttributes(attribute.Int("messages.read", len(ids)))
	if len(ids) == 0 {
		return 0, nil
	}
	s.metrics.Messages("read", len(ids))
	s.publish(ctx, ticketID, events.MessageUpdated{
		TicketID:   ticketID,
		MessageIDs: ids,
		Status:     string(domain.MessageStatusRead),
		ByUserID:   session.EffectiveUserID,
	})
	return len(ids), nil
}

// Acknowledge records that the caller's client received the given
// messages. Only sent messages written by someone else move to delivered.
func (s *MessageService) Acknowledge(ctx context.Context, session domain.Session, ticketID string, messageIDs []string) (int, error) {
	ids, err := normalizeIDs(messageIDs)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if _, err := loadTicket(ctx, s.tickets, session, ticketID); err != nil {
		return 0, err
	}
	changed, err := s.messages.MarkDelivered(ctx, ticketID, session.EffectiveUserID, ids)
	if err != nil {
		return 0, errorutil.NewInternalError(err)
	}
	if len(changed) == 0 {
		return 0, nil
	}
	s.metrics.Messages("delivered", len(changed))
	s.publish(ctx, ticketID, events.MessageUpdated{
		TicketID:   ticketID,
		MessageIDs: changed,
		Status:     string(domain.MessageStatusDelivered),
		ByUserID:   session.EffectiveUserID,
	})
	return len(changed), nil
}

func normalizeIDs(raw []string) ([]string, error) {
	if len(raw) > maxAckBatch {
		return nil, errorutil.NewValidationError("too many message ids", map[string]any{"max": maxAckBatch})
	}
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		parsed, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			return nil, errorutil.NewValidationError("invalid message id", map[string]any{"id": id})
		}
		key := parsed.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ids = append(ids, key)
	}
	return ids, nil
}

// List returns the ticket thread in creation order with attachments.
func (s *MessageService) List(ctx context.Context, session domain.Session, ticketID string) ([]domain.TicketMessage, error) {
	if _, err := loadTicket(ctx, s.tickets, session, ticketID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	if len(msgs) == 0 {
		return msgs, nil
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	refs, err := s.attachments.ListByMessages(ctx, ids)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	byMessage := make(map[string][]domain.AttachmentReference, len(refs))
	for _, ref := range refs {
		byMessage[ref.TicketMessageID] = append(byMessage[ref.TicketMessageID], ref)
	}
	for i := range msgs {
		msgs[i].Attachments = byMessage[msgs[i].ID]
	}
	return msgs, nil
}

// VoiceNoteURL presigns a download link for a stored voice note.
func (s *MessageService) VoiceNoteURL(ctx context.Context, ref string) (string, error) {
	if s.blobs == nil {
		return "", errorutil.NewValidationError("voice notes are not enabled", nil)
	}
	url, err := s.blobs.PresignDownload(ctx, ref)
	if err != nil {
		return "", errorutil.NewInternalError(err)
	}
	return url, nil
}

func (s *MessageService) publish(ctx context.Context, ticketID string, event events.Event) {
	if s.channel == nil {
		return
	}
	if err := s.channel.Publish(ctx, events.TicketTopic(ticketID), event); err != nil {
		s.logger.Warn("publish message event failed",
			zap.String("ticket_id", ticketID),
			zap.String("kind", string(event.Kind())),
			zap.Error(err))
	}
}
