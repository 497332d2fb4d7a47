package events

import (
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// Kind tags an event variant.
type Kind string

const (
	KindMessageInserted     Kind = "message_inserted"
	KindMessageUpdated      Kind = "message_updated"
	KindTicketUpdated       Kind = "ticket_updated"
	KindViewerChanged       Kind = "viewer_changed"
	KindPresenceSynced      Kind = "presence_synced"
	KindNotificationCreated Kind = "notification_created"
)

// Event is one of the variants below; consumers type-switch on it.
type Event interface {
	Kind() Kind
}

// Envelope wraps a published event. ID is stable across redeliveries.
type Envelope struct {
	ID         string
	Topic      Topic
	Kind       Kind
	OccurredAt time.Time
	Event      Event
}

// AttachmentPayload mirrors domain.AttachmentReference on the wire.
type AttachmentPayload struct {
	ID         string `json:"id" cbor:"id"`
	StorageKey string `json:"storage_key" cbor:"storage_key"`
	FileName   string `json:"file_name" cbor:"file_name"`
	MimeType   string `json:"mime_type" cbor:"mime_type"`
	SizeBytes  int64  `json:"size_bytes" cbor:"size_bytes"`
}

// MessageInserted announces a new chat or system message.
type MessageInserted struct {
	ID              string              `json:"id" cbor:"id"`
	TicketID        string              `json:"ticket_id" cbor:"ticket_id"`
	SenderID        *string             `json:"sender_id,omitempty" cbor:"sender_id,omitempty"`
	Body            string              `json:"message" cbor:"message"`
	IsSystemMessage bool                `json:"is_system_message" cbor:"is_system_message"`
	VoiceNoteRef    *string             `json:"voice_note_ref,omitempty" cbor:"voice_note_ref,omitempty"`
	Status          string              `json:"status" cbor:"status"`
	Attachments     []AttachmentPayload `json:"attachments,omitempty" cbor:"attachments,omitempty"`
	CreatedAt       time.Time           `json:"created_at" cbor:"created_at"`
}

func (MessageInserted) Kind() Kind { return KindMessageInserted }

// NewMessageInserted builds the event for m.
func NewMessageInserted(m domain.TicketMessage) MessageInserted {
	evt := MessageInserted{
		ID:              m.ID,
		TicketID:        m.TicketID,
		SenderID:        m.SenderID,
		Body:            m.Body,
		IsSystemMessage: m.IsSystemMessage,
		VoiceNoteRef:    m.VoiceNoteRef,
		Status:          string(m.Status),
		CreatedAt:       m.CreatedAt,
	}
	for _, a := range m.Attachments {
		evt.Attachments = append(evt.Attachments, AttachmentPayload{
			ID:         a.ID,
			StorageKey: a.StorageKey,
			FileName:   a.FileName,
			MimeType:   a.MimeType,
			SizeBytes:  a.SizeBytes,
		})
	}
	return evt
}

// MessageUpdated announces a status change of one or more messages.
type MessageUpdated struct {
	TicketID   string   `json:"ticket_id" cbor:"ticket_id"`
	MessageIDs []string `json:"message_ids" cbor:"message_ids"`
	Status     string   `json:"status" cbor:"status"`
	ByUserID   string   `json:"by_user_id" cbor:"by_user_id"`
}

func (MessageUpdated) Kind() Kind { return KindMessageUpdated }

// TicketUpdated carries the ticket row after a status or assignee change.
type TicketUpdated struct {
	TicketID   string     `json:"ticket_id" cbor:"ticket_id"`
	Status     string     `json:"status" cbor:"status"`
	OldStatus  string     `json:"old_status,omitempty" cbor:"old_status,omitempty"`
	AssignedTo *string    `json:"assigned_to,omitempty" cbor:"assigned_to,omitempty"`
	ChangedBy  string     `json:"changed_by" cbor:"changed_by"`
	UpdatedAt  time.Time  `json:"updated_at" cbor:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" cbor:"resolved_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" cbor:"closed_at,omitempty"`
}

func (TicketUpdated) Kind() Kind { return KindTicketUpdated }

// NewTicketUpdated builds the event for t; oldStatus may be empty.
func NewTicketUpdated(t domain.Ticket, oldStatus domain.TicketStatus, changedBy string) TicketUpdated {
	return TicketUpdated{
		TicketID:   t.ID,
		Status:     string(t.Status),
		OldStatus:  string(oldStatus),
		AssignedTo: t.AssignedTo,
		ChangedBy:  changedBy,
		UpdatedAt:  t.UpdatedAt,
		ResolvedAt: t.ResolvedAt,
		ClosedAt:   t.ClosedAt,
	}
}

// Viewer actions carried by ViewerChanged.
const (
	ViewerEntered   = "entered"
	ViewerRefreshed = "refreshed"
	ViewerLeft      = "left"
	ViewerExpired   = "expired"
)

// ViewerChanged tells ticket watchers to recompute the viewer list.
type ViewerChanged struct {
	TicketID string    `json:"ticket_id" cbor:"ticket_id"`
	UserID   string    `json:"user_id" cbor:"user_id"`
	Action   string    `json:"action" cbor:"action"`
	LastSeen time.Time `json:"last_seen" cbor:"last_seen"`
}

func (ViewerChanged) Kind() Kind { return KindViewerChanged }

// PresenceEntry is one user's heartbeat inside a PresenceSynced snapshot.
type PresenceEntry struct {
	UserID   string                 `json:"user_id" cbor:"user_id"`
	OnlineAt time.Time              `json:"online_at" cbor:"online_at"`
	Status   string                 `json:"status" cbor:"status"`
	Profile  domain.ProfileSnapshot `json:"profile_snapshot" cbor:"profile_snapshot"`
}

// PresenceSynced carries the full live state of a presence scope.
type PresenceSynced struct {
	Scope   string          `json:"scope" cbor:"scope"`
	Entries []PresenceEntry `json:"entries" cbor:"entries"`
}

func (PresenceSynced) Kind() Kind { return KindPresenceSynced }

// NewPresenceSynced builds a snapshot from live records.
func NewPresenceSynced(scope domain.Scope, records []domain.PresenceRecord) PresenceSynced {
	evt := PresenceSynced{Scope: scope.Key(), Entries: make([]PresenceEntry, 0, len(records))}
	for _, r := range records {
		evt.Entries = append(evt.Entries, PresenceEntry{
			UserID:   r.UserID,
			OnlineAt: r.LastHeartbeat,
			Status:   string(r.State),
			Profile:  r.Profile,
		})
	}
	return evt
}

// NotificationCreated carries a new notification row.
type NotificationCreated struct {
	ID        string    `json:"id" cbor:"id"`
	UserID    string    `json:"user_id" cbor:"user_id"`
	Title     string    `json:"title" cbor:"title"`
	Message   string    `json:"message" cbor:"message"`
	Type      string    `json:"type" cbor:"type"`
	TicketID  *string   `json:"ticket_id,omitempty" cbor:"ticket_id,omitempty"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at"`
}

func (NotificationCreated) Kind() Kind { return KindNotificationCreated }

// NewNotificationCreated builds the event for n.
func NewNotificationCreated(n domain.Notification) NotificationCreated {
	return NotificationCreated{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		TicketID:  n.TicketID,
		CreatedAt: n.CreatedAt,
	}
}
