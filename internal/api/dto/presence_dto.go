package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// HeartbeatRequest payload. An empty TicketID targets the global roster.
type HeartbeatRequest struct {
	TicketID string               `json:"ticket_id"`
	State    domain.ActivityState `json:"state"`
}

// PresenceUser is one live member of a scope.
type PresenceUser struct {
	UserID        string               `json:"user_id"`
	State         domain.ActivityState `json:"state"`
	DisplayName   string               `json:"display_name,omitempty"`
	AvatarURL     string               `json:"avatar_url,omitempty"`
	Role          string               `json:"role,omitempty"`
	LastHeartbeat time.Time            `json:"last_heartbeat"`
}

// RosterResponse lists other live users; Total counts the caller too.
type RosterResponse struct {
	Scope string         `json:"scope"`
	Users []PresenceUser `json:"users"`
	Total int            `json:"total"`
}

// ViewerResponse is one active viewer of a ticket.
type ViewerResponse struct {
	UserID   string    `json:"user_id"`
	LastSeen time.Time `json:"last_seen"`
}
