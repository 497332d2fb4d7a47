package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// ViewerRepository persists who is currently looking at which ticket.
// At most one row exists per (ticket, user).
type ViewerRepository interface {
	Upsert(ctx context.Context, viewer domain.TicketViewer) error
	Delete(ctx context.Context, ticketID, userID string) error
	ListSince(ctx context.Context, ticketID string, since time.Time) ([]domain.TicketViewer, error)
	DeleteBefore(ctx context.Context, before time.Time) ([]domain.TicketViewer, error)
}

type viewerRepository struct {
	pool *pgxpool.Pool
}

// NewViewerRepository constructs repository.
func NewViewerRepository(pool *pgxpool.Pool) ViewerRepository {
	return &viewerRepository{pool: pool}
}

func (r *viewerRepository) Upsert(ctx context.Context, viewer domain.TicketViewer) error {
	const query = `
        INSERT INTO ticket_viewers (ticket_id, user_id, last_seen)
        VALUES ($1,$2,$3)
        ON CONFLICT (ticket_id, user_id) DO UPDATE SET last_seen = GREATEST(ticket_viewers.last_seen, EXCLUDED.last_seen)`
	_, err := r.pool.Exec(ctx, query, viewer.TicketID, viewer.UserID, viewer.LastSeen)
	return err
}

func (r *viewerRepository) Delete(ctx context.Context, ticketID, userID string) error {
	const query = `DELETE FROM ticket_viewers WHERE ticket_id=$1 AND user_id=$2`
	_, err := r.pool.Exec(ctx, query, ticketID, userID)
	return err
}

func (r *viewerRepository) ListSince(ctx context.Context, ticketID string, since time.Time) ([]domain.TicketViewer, error) {
	const query = `
        SELECT ticket_id, user_id, last_seen FROM ticket_viewers
        WHERE ticket_id=$1 AND last_seen >= $2
        ORDER BY last_seen DESC`
	rows, err := r.pool.Query(ctx, query, ticketID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketViewer
	for rows.Next() {
		var viewer domain.TicketViewer
		if err := rows.Scan(&viewer.TicketID, &viewer.UserID, &viewer.LastSeen); err != nil {
			return nil, err
		}
		result = append(result, viewer)
	}
	return result, rows.Err()
}

// DeleteBefore removes rows last seen before the cutoff and returns them.
func (r *viewerRepository) DeleteBefore(ctx context.Context, before time.Time) ([]domain.TicketViewer, error) {
	const query = `
        DELETE FROM ticket_viewers WHERE last_seen < $1
        RETURNING ticket_id, user_id, last_seen`
	rows, err := r.pool.Query(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketViewer
	for rows.Next() {
		var viewer domain.TicketViewer
		if err := rows.Scan(&viewer.TicketID, &viewer.UserID, &viewer.LastSeen); err != nil {
			return nil, err
		}
		result = append(result, viewer)
	}
	return result, rows.Err()
}
