package domain

import "time"

// MessageStatus is the delivery lifecycle of a chat message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// Rank orders statuses; a message never moves to a lower rank.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageStatusSent:
		return 1
	case MessageStatusDelivered:
		return 2
	case MessageStatusRead:
		return 3
	}
	return 0
}

// Advances reports whether moving from s to next is forward progress.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.Rank() > s.Rank()
}

// TicketMessage captures one entry of a ticket conversation. SenderID is
// nil for system-authored messages. Exactly one of Body and VoiceNoteRef
// carries the content.
type TicketMessage struct {
	ID              string
	TicketID        string
	SenderID        *string
	Body            string
	IsSystemMessage bool
	VoiceNoteRef    *string
	Status          MessageStatus
	Attachments     []AttachmentReference
	CreatedAt       time.Time
}

// AuthoredBy reports whether userID sent the message.
func (m *TicketMessage) AuthoredBy(userID string) bool {
	return m.SenderID != nil && *m.SenderID == userID
}

// AttachmentReference stores metadata for ticket message attachments.
type AttachmentReference struct {
	ID              string
	TicketMessageID string
	StorageKey      string
	FileName        string
	MimeType        string
	SizeBytes       int64
	CreatedAt       time.Time
}
