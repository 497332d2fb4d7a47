package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-realtime/internal/api/dto"
	"github.com/spec-kit/helpdesk-realtime/internal/auth"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

func currentSession(c *fiber.Ctx) (domain.Session, error) {
	session, ok := auth.SessionFromContext(c)
	if !ok {
		return domain.Session{}, apperrors.NewUnauthorized("session required")
	}
	return session, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:           ticket.ID,
		Number:       ticket.Number,
		Status:       ticket.Status,
		StatusLabel:  ticket.Status.Label(),
		Priority:     ticket.Priority,
		CreatedBy:    ticket.CreatedBy,
		AssignedTo:   ticket.AssignedTo,
		DepartmentID: ticket.DepartmentID,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
		ResolvedAt:   ticket.ResolvedAt,
		ClosedAt:     ticket.ClosedAt,
	}
}

func historyResponses(entries []domain.TicketStatusHistory) []dto.HistoryResponse {
	resp := make([]dto.HistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, historyResponse(entry))
	}
	return resp
}

func historyResponse(entry domain.TicketStatusHistory) dto.HistoryResponse {
	return dto.HistoryResponse{
		ID:        entry.ID,
		OldStatus: entry.OldStatus,
		NewStatus: entry.NewStatus,
		ChangedBy: entry.ChangedBy,
		Notes:     entry.Notes,
		CreatedAt: entry.CreatedAt,
	}
}

// messageResponse maps msg; voiceURL is the presigned link of its voice
// note, if any.
func messageResponse(msg *domain.TicketMessage, voiceURL string) dto.MessageResponse {
	attachments := make([]dto.AttachmentResponse, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, dto.AttachmentResponse{
			ID:         att.ID,
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}
	return dto.MessageResponse{
		ID:              msg.ID,
		TicketID:        msg.TicketID,
		SenderID:        msg.SenderID,
		Body:            msg.Body,
		IsSystemMessage: msg.IsSystemMessage,
		VoiceNoteRef:    msg.VoiceNoteRef,
		VoiceNoteURL:    voiceURL,
		Status:          msg.Status,
		Attachments:     attachments,
		CreatedAt:       msg.CreatedAt,
	}
}

func notificationResponse(n domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.ID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		TicketID:  n.TicketID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}
