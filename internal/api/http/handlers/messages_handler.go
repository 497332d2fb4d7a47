package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-realtime/internal/api/dto"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/service"
	apperrors "github.com/spec-kit/helpdesk-realtime/pkg/util/errorutil"
)

// MessagesHandler serves the ticket chat thread.
type MessagesHandler struct {
	service *service.MessageService
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(messageService *service.MessageService) *MessagesHandler {
	return &MessagesHandler{service: messageService}
}

// List GET /tickets/:id/messages.
func (h *MessagesHandler) List(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	msgs, err := h.service.List(c.UserContext(), session, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, h.messageResponse(c.UserContext(), &msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Send POST /tickets/:id/messages. JSON bodies carry text; multipart
// bodies carry a "voice" file plus optional "message" and "attachments"
// fields.
func (h *MessagesHandler) Send(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	input := service.SendInput{TicketID: c.Params("id")}

	var req dto.CreateMessageRequest
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid multipart payload", nil)
		}
		req.Body = firstValue(form.Value["message"])
		if raw := firstValue(form.Value["attachments"]); raw != "" {
			if err := c.App().Config().JSONDecoder([]byte(raw), &req.Attachments); err != nil {
				return apperrors.NewValidationError("invalid attachments", nil)
			}
		}
		if files := form.File["voice"]; len(files) > 0 {
			fh := files[0]
			file, err := fh.Open()
			if err != nil {
				return apperrors.NewValidationError("invalid voice upload", nil)
			}
			defer file.Close()
			input.Voice = &service.VoiceClip{
				ContentType: fh.Header.Get(fiber.HeaderContentType),
				Size:        fh.Size,
				Body:        file,
			}
		}
	} else if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input.Body = req.Body
	for _, att := range req.Attachments {
		input.Attachments = append(input.Attachments, service.AttachmentInput{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}

	msg, err := h.service.Send(c.UserContext(), session, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.messageResponse(c.UserContext(), msg)})
}

// MarkRead POST /tickets/:id/messages/read.
func (h *MessagesHandler) MarkRead(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	n, err := h.service.MarkRead(c.UserContext(), session, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CountResponse{Updated: int64(n)}})
}

// Acknowledge POST /tickets/:id/messages/ack.
func (h *MessagesHandler) Acknowledge(c *fiber.Ctx) error {
	session, err := currentSession(c)
	if err != nil {
		return err
	}
	var req dto.AckRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	n, err := h.service.Acknowledge(c.UserContext(), session, c.Params("id"), req.IDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CountResponse{Updated: int64(n)}})
}

// messageResponse presigns the voice note when present. A presign failure
// leaves the link out rather than failing the thread.
func (h *MessagesHandler) messageResponse(ctx context.Context, msg *domain.TicketMessage) dto.MessageResponse {
	var url string
	if msg.VoiceNoteRef != nil {
		url, _ = h.service.VoiceNoteURL(ctx, *msg.VoiceNoteRef)
	}
	return messageResponse(msg, url)
}

func firstValue(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
