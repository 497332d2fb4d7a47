package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// TicketMessageRepository manages ticket thread messages. Status updates
// only ever move a message forward: sent, delivered, read.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
	MarkRead(ctx context.Context, ticketID, readerID string) ([]string, error)
	MarkDelivered(ctx context.Context, ticketID, recipientID string, messageIDs []string) ([]string, error)
}

type ticketMessageRepository struct {
	pool *pgxpool.Pool
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &ticketMessageRepository{pool: pool}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, sender_id, message, is_system_message, voice_note_ref, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.TicketID,
		msg.SenderID,
		msg.Body,
		msg.IsSystemMessage,
		msg.VoiceNoteRef,
		msg.Status,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, sender_id, message, is_system_message, voice_note_ref, status, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.Body,
			&msg.IsSystemMessage,
			&msg.VoiceNoteRef,
			&msg.Status,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// MarkRead flips every unread message of the ticket not sent by readerID
// in one statement and returns the IDs it changed.
func (r *ticketMessageRepository) MarkRead(ctx context.Context, ticketID, readerID string) ([]string, error) {
	const query = `
        UPDATE ticket_messages SET status='read'
        WHERE ticket_id=$1 AND status <> 'read' AND sender_id IS DISTINCT FROM $2
        RETURNING id`
	rows, err := r.pool.Query(ctx, query, ticketID, readerID)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// MarkDelivered moves the given messages from sent to delivered. Read
// messages and the recipient's own messages are left untouched.
func (r *ticketMessageRepository) MarkDelivered(ctx context.Context, ticketID, recipientID string, messageIDs []string) ([]string, error) {
	const query = `
        UPDATE ticket_messages SET status='delivered'
        WHERE ticket_id=$1 AND id = ANY($3::uuid[]) AND status='sent' AND sender_id IS DISTINCT FROM $2
        RETURNING id`
	rows, err := r.pool.Query(ctx, query, ticketID, recipientID, messageIDs)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
