package domain

import (
	"fmt"
	"time"
)

// TicketStatusHistory is an immutable audit entry, one per transition.
// OldStatus may be nil only on the first entry of a ticket.
type TicketStatusHistory struct {
	ID        string
	TicketID  string
	OldStatus *TicketStatus
	NewStatus TicketStatus
	ChangedBy string
	Notes     *string
	CreatedAt time.Time
}

// ValidateWalk checks that entries, in creation order, form a walk of the
// status graph: each entry starts where the previous one ended and
// follows an allowed edge.
func ValidateWalk(entries []TicketStatusHistory) error {
	for i, entry := range entries {
		if entry.OldStatus == nil {
			if i != 0 {
				return fmt.Errorf("history entry %d (%s) has no old status", i, entry.ID)
			}
			continue
		}
		if i > 0 && *entry.OldStatus != entries[i-1].NewStatus {
			return fmt.Errorf("history entry %d starts at %s but previous entry ended at %s",
				i, *entry.OldStatus, entries[i-1].NewStatus)
		}
		if !CanTransition(*entry.OldStatus, entry.NewStatus) {
			return fmt.Errorf("history entry %d: %s -> %s is not an allowed transition",
				i, *entry.OldStatus, entry.NewStatus)
		}
	}
	return nil
}
