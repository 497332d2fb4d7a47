package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// TicketHistoryRepository reads the status audit trail. Entries are only
// written by TicketRepository inside a transition.
type TicketHistoryRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketStatusHistory, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketStatusHistory, error) {
	const query = `
        SELECT id, ticket_id, old_status, new_status, changed_by, notes, created_at
        FROM ticket_status_history WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketStatusHistory
	for rows.Next() {
		var history domain.TicketStatusHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.OldStatus,
			&history.NewStatus,
			&history.ChangedBy,
			&history.Notes,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
