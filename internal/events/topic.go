package events

import (
	"fmt"
	"strings"

	"github.com/spec-kit/helpdesk-realtime/internal/domain"
)

// Topic names a broadcast stream. Subscribers of one topic see its events
// in publish order; nothing is promised across topics.
type Topic string

const (
	familyTicket        = "ticket"
	familyTicketViewers = "ticket-viewers"
	familyPresence      = "presence"
	familyNotifications = "notifications"
)

// GlobalPresenceTopic carries the application-wide presence roster.
const GlobalPresenceTopic Topic = familyPresence + ":global"

// TicketTopic carries message and ticket updates of one ticket.
func TicketTopic(ticketID string) Topic {
	return Topic(familyTicket + ":" + ticketID)
}

// ViewersTopic carries viewer and per-ticket presence changes.
func ViewersTopic(ticketID string) Topic {
	return Topic(familyTicketViewers + ":" + ticketID)
}

// NotificationsTopic carries notifications addressed to one user.
func NotificationsTopic(userID string) Topic {
	return Topic(familyNotifications + ":" + userID)
}

// PresenceTopic returns the topic presence snapshots of scope go to.
func PresenceTopic(scope domain.Scope) Topic {
	if scope.IsGlobal() {
		return GlobalPresenceTopic
	}
	return ViewersTopic(scope.TicketID)
}

// ParseTopic validates a client-supplied topic name.
func ParseTopic(raw string) (Topic, error) {
	family, id, ok := strings.Cut(raw, ":")
	if !ok {
		return "", fmt.Errorf("topic %q: missing ':'", raw)
	}
	if err := validID(id); err != nil {
		return "", fmt.Errorf("topic %q: %w", raw, err)
	}
	switch family {
	case familyTicket, familyTicketViewers, familyNotifications:
		return Topic(raw), nil
	case familyPresence:
		if Topic(raw) == GlobalPresenceTopic {
			return GlobalPresenceTopic, nil
		}
	}
	return "", fmt.Errorf("topic %q: unknown family %q", raw, family)
}

func validID(id string) error {
	if id == "" {
		return fmt.Errorf("empty id")
	}
	if strings.ContainsAny(id, ".*> \t\r\n:") {
		return fmt.Errorf("id %q contains reserved characters", id)
	}
	return nil
}

// Family returns the part before the colon.
func (t Topic) Family() string {
	family, _, _ := strings.Cut(string(t), ":")
	return family
}

// ID returns the part after the colon.
func (t Topic) ID() string {
	_, id, _ := strings.Cut(string(t), ":")
	return id
}

// Subject maps the topic onto a NATS subject under prefix.
func (t Topic) Subject(prefix string) string {
	return prefix + "." + t.Family() + "." + t.ID()
}

func (t Topic) String() string { return string(t) }
