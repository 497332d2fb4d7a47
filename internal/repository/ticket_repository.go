package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// TransitionRecord describes one status change to apply atomically.
// Allow is evaluated against the locked current status; a non-nil error
// aborts the transaction and is returned unchanged.
type TransitionRecord struct {
	TicketID  string
	Expected  *domain.TicketStatus
	NewStatus domain.TicketStatus
	ChangedBy string
	Notes     *string
	Allow     func(current, next domain.TicketStatus) error
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ApplyTransition(ctx context.Context, rec TransitionRecord) (*domain.Ticket, *domain.TicketStatusHistory, error)
	UpdateAssignee(ctx context.Context, ticketID string, assigneeID *string) (*domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, status, priority, created_by, assigned_to, department_id,
               created_at, updated_at, resolved_at, closed_at`

// Create inserts the ticket in the open state. History rows are written
// by transitions only.
func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	ticket.Status = domain.TicketStatusOpen
	const query = `
        INSERT INTO tickets (status, priority, created_by, assigned_to, department_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, ticket_number, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Status,
		ticket.Priority,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.DepartmentID,
	).Scan(&ticket.ID, &ticket.Number, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.pool.QueryRow(ctx, query, id))
}

// ApplyTransition locks the ticket row, verifies the expected status,
// writes the history entry and updates the ticket in one transaction.
// resolved_at and closed_at are stamped the first time the ticket enters
// those states and never cleared.
func (r *ticketRepository) ApplyTransition(ctx context.Context, rec TransitionRecord) (ticket *domain.Ticket, history *domain.TicketStatusHistory, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const lock = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	current, err := scanTicket(tx.QueryRow(ctx, lock, rec.TicketID))
	if err != nil {
		return nil, nil, err
	}
	if rec.Expected != nil && *rec.Expected != current.Status {
		err = ErrStaleStatus
		return nil, nil, err
	}
	if rec.Allow != nil {
		if err = rec.Allow(current.Status, rec.NewStatus); err != nil {
			return nil, nil, err
		}
	}

	old := current.Status
	history = &domain.TicketStatusHistory{
		TicketID:  rec.TicketID,
		OldStatus: &old,
		NewStatus: rec.NewStatus,
		ChangedBy: rec.ChangedBy,
		Notes:     rec.Notes,
	}
	const insertHistory = `
        INSERT INTO ticket_status_history (ticket_id, old_status, new_status, changed_by, notes)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	if err = tx.QueryRow(ctx, insertHistory,
		history.TicketID,
		history.OldStatus,
		history.NewStatus,
		history.ChangedBy,
		history.Notes,
	).Scan(&history.ID, &history.CreatedAt); err != nil {
		return nil, nil, err
	}

	const update = `
        UPDATE tickets SET
            status = $2,
            updated_at = NOW(),
            resolved_at = CASE WHEN $2 = 'resolved' THEN COALESCE(resolved_at, NOW()) ELSE resolved_at END,
            closed_at = CASE WHEN $2 = 'closed' THEN COALESCE(closed_at, NOW()) ELSE closed_at END
        WHERE id = $1
        RETURNING ` + ticketColumns
	ticket, err = scanTicket(tx.QueryRow(ctx, update, rec.TicketID, rec.NewStatus))
	if err != nil {
		return nil, nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return ticket, history, nil
}

func (r *ticketRepository) UpdateAssignee(ctx context.Context, ticketID string, assigneeID *string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET assigned_to=$2, updated_at=NOW()
        WHERE id=$1
        RETURNING ` + ticketColumns
	return scanTicket(r.pool.QueryRow(ctx, query, ticketID, assigneeID))
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.DepartmentID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
