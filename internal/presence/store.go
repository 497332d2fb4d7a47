package presence

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// Store keeps presence records that expire on their own. List returns
// only records whose TTL has not been exceeded; a record exactly ttl old is
// still live, matching ComputeRoster. A (scope, user) pair holds at most
// one record; the latest Upsert wins.
type Store interface {
	Upsert(ctx context.Context, rec domain.PresenceRecord, ttl time.Duration) error
	Remove(ctx context.Context, scope domain.Scope, userID string) error
	List(ctx context.Context, scope domain.Scope) ([]domain.PresenceRecord, error)
}
