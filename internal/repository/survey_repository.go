package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SurveyRepository answers whether a satisfaction survey was submitted.
type SurveyRepository interface {
	Exists(ctx context.Context, ticketID, userID string) (bool, error)
}

type surveyRepository struct {
	pool *pgxpool.Pool
}

// NewSurveyRepository constructs repository.
func NewSurveyRepository(pool *pgxpool.Pool) SurveyRepository {
	return &surveyRepository{pool: pool}
}

func (r *surveyRepository) Exists(ctx context.Context, ticketID, userID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM ticket_surveys WHERE ticket_id=$1 AND user_id=$2)`
	var exists bool
	err := r.pool.QueryRow(ctx, query, ticketID, userID).Scan(&exists)
	return exists, err
}
