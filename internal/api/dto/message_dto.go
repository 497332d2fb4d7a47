package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// MessageResponse represents a thread message.
type MessageResponse struct {
	ID              string               `json:"id"`
	TicketID        string               `json:"ticket_id"`
	SenderID        *string              `json:"sender_id"`
	Body            string               `json:"message"`
	IsSystemMessage bool                 `json:"is_system_message"`
	VoiceNoteRef    *string              `json:"voice_note_ref,omitempty"`
	VoiceNoteURL    string               `json:"voice_note_url,omitempty"`
	Status          domain.MessageStatus `json:"status"`
	Attachments     []AttachmentResponse `json:"attachments"`
	CreatedAt       time.Time            `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID         string `json:"id"`
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// CreateMessageRequest payload. Voice notes arrive as multipart uploads
// instead, with the attachments JSON-encoded in a form field.
type CreateMessageRequest struct {
	Body        string              `json:"message"`
	Attachments []AttachmentRequest `json:"attachments"`
}

// AttachmentRequest describes attachment input.
type AttachmentRequest struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// AckRequest lists message ids the client has received.
type AckRequest struct {
	IDs []string `json:"ids"`
}

// CountResponse reports how many rows an update touched.
type CountResponse struct {
	Updated int64 `json:"updated"`
}
