package presence

import (
	"sort"
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// Roster is the view of a scope from one user's perspective.
type Roster struct {
	// Others are live users other than self, one entry per user.
	Others []domain.PresenceRecord
	// Total counts the viewer too.
	Total int
}

// ComputeRoster derives the visible roster from raw records. Records older
// than threshold are stale and dropped; multiple records of one user
// collapse to the most recent; self is excluded from Others. With
// sortByState the result orders online before busy before away.
func ComputeRoster(records []domain.PresenceRecord, now time.Time, threshold time.Duration, self string, sortByState bool) Roster {
	latest := make(map[string]domain.PresenceRecord, len(records))
	for _, rec := range records {
		if rec.Age(now) > threshold {
			continue
		}
		if prev, ok := latest[rec.UserID]; ok && !rec.LastHeartbeat.After(prev.LastHeartbeat) {
			continue
		}
		latest[rec.UserID] = rec
	}
	delete(latest, self)

	others := make([]domain.PresenceRecord, 0, len(latest))
	for _, rec := range latest {
		others = append(others, rec)
	}
	sort.Slice(others, func(i, j int) bool {
		if sortByState {
			ri, rj := others[i].State.Rank(), others[j].State.Rank()
			if ri != rj {
				return ri < rj
			}
		}
		return others[i].UserID < others[j].UserID
	})

	return Roster{Others: others, Total: len(others) + 1}
}
