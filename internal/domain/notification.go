package domain

import "time"

// NotificationType classifies what triggered a notification.
type NotificationType string

const (
	NotificationTicketUpdated  NotificationType = "ticket_updated"
	NotificationTicketAssigned NotificationType = "ticket_assigned"
	NotificationNewMessage     NotificationType = "new_message"
)

// Notification is addressed to exactly one user.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      NotificationType
	TicketID  *string
	IsRead    bool
	CreatedAt time.Time
}
