package domain

import (
	"strings"
	"time"
)

// ActivityState is the self-reported state carried by a heartbeat.
type ActivityState string

const (
	ActivityOnline ActivityState = "online"
	ActivityBusy   ActivityState = "busy"
	ActivityAway   ActivityState = "away"
)

// Rank orders states for roster display: online, then busy, then away.
func (a ActivityState) Rank() int {
	switch a {
	case ActivityOnline:
		return 0
	case ActivityBusy:
		return 1
	case ActivityAway:
		return 2
	}
	return 3
}

// Valid reports whether a is a known state.
func (a ActivityState) Valid() bool {
	return a.Rank() < 3
}

const globalScopeKey = "global"

// Scope namespaces presence: one ticket ("room") or the whole application.
type Scope struct {
	TicketID string
}

// GlobalScope is the application-wide presence scope.
var GlobalScope = Scope{}

// TicketScope returns the presence scope of one ticket.
func TicketScope(ticketID string) Scope {
	return Scope{TicketID: ticketID}
}

// IsGlobal reports whether s is the application-wide scope.
func (s Scope) IsGlobal() bool {
	return s.TicketID == ""
}

// Key is the storage key of the scope.
func (s Scope) Key() string {
	if s.IsGlobal() {
		return globalScopeKey
	}
	return "ticket:" + s.TicketID
}

// ParseScope is the inverse of Key.
func ParseScope(key string) (Scope, bool) {
	if key == globalScopeKey {
		return GlobalScope, true
	}
	if id, ok := strings.CutPrefix(key, "ticket:"); ok && id != "" {
		return TicketScope(id), true
	}
	return Scope{}, false
}

// ProfileSnapshot is the display data broadcast with a heartbeat.
type ProfileSnapshot struct {
	DisplayName string `json:"display_name,omitempty" cbor:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty" cbor:"avatar_url,omitempty"`
	Role        string `json:"role,omitempty" cbor:"role,omitempty"`
}

// PresenceRecord is ephemeral soft-state: a (scope, user) pair is live
// while its last heartbeat is within the scope's offline threshold.
type PresenceRecord struct {
	Scope         Scope
	UserID        string
	LastHeartbeat time.Time
	State         ActivityState
	Profile       ProfileSnapshot
}

// Age returns how long ago the last heartbeat arrived.
func (r PresenceRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.LastHeartbeat)
}

// TicketViewer is the persisted "who is looking at this ticket" row.
type TicketViewer struct {
	TicketID string
	UserID   string
	LastSeen time.Time
}
