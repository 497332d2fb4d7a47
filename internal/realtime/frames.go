package realtime

import (
	"time"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
)

// Frames sent by clients.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameActivity    = "activity"
	FrameVisibility  = "visibility"
	FrameStatus      = "status"
	FrameAck         = "ack"
	FrameView        = "view"
	FrameLeave       = "leave"
)

// Frames sent by the gateway.
const (
	FrameEvent  = "event"
	FrameResync = "resync"
	FrameError  = "error"
)

// ClientFrame is one JSON message from a client. Which fields are used
// depends on Type.
type ClientFrame struct {
	Type     string               `json:"type"`
	Topic    string               `json:"topic,omitempty"`
	TicketID string               `json:"ticket_id,omitempty"`
	IDs      []string             `json:"ids,omitempty"`
	Visible  *bool                `json:"visible,omitempty"`
	State    domain.ActivityState `json:"state,omitempty"`
}

// ServerFrame is one JSON message to a client.
type ServerFrame struct {
	Type       string     `json:"type"`
	Topic      string     `json:"topic,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	ID         string     `json:"id,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
	Payload    any        `json:"payload,omitempty"`
	Code       string     `json:"code,omitempty"`
	Message    string     `json:"message,omitempty"`
}

func eventFrame(env events.Envelope) ServerFrame {
	at := env.OccurredAt
	return ServerFrame{
		Type:       FrameEvent,
		Topic:      string(env.Topic),
		Kind:       string(env.Kind),
		ID:         env.ID,
		OccurredAt: &at,
		Payload:    env.Event,
	}
}

// resyncFrame tells the client it missed events on topic and should
// re-fetch the current state.
func resyncFrame(topic events.Topic) ServerFrame {
	return ServerFrame{Type: FrameResync, Topic: string(topic)}
}

func errorFrame(code, message string) ServerFrame {
	return ServerFrame{Type: FrameError, Code: code, Message: message}
}
