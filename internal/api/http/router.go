package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/helpdesk-realtime/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-realtime/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Messages       *handlers.MessagesHandler
	Viewers        *handlers.ViewersHandler
	Presence       *handlers.PresenceHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/status", cfg.Tickets.Transition)
	tickets.Post("/:id/assignee", auth.RequireStaff(), cfg.Tickets.Reassign)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Get("/:id/feedback-eligibility", cfg.Tickets.FeedbackEligibility)

	tickets.Get("/:id/messages", cfg.Messages.List)
	tickets.Post("/:id/messages", cfg.Messages.Send)
	tickets.Post("/:id/messages/read", cfg.Messages.MarkRead)
	tickets.Post("/:id/messages/ack", cfg.Messages.Acknowledge)

	tickets.Post("/:id/viewers", cfg.Viewers.Enter)
	tickets.Delete("/:id/viewers", cfg.Viewers.Leave)
	tickets.Get("/:id/viewers", cfg.Viewers.List)

	presence := app.Group("/presence", cfg.AuthMiddleware.Handle)
	presence.Post("/heartbeat", cfg.Presence.Heartbeat)
	presence.Get("/online", cfg.Presence.Online)

	notifications := app.Group("/notifications", cfg.AuthMiddleware.Handle)
	notifications.Get("/", cfg.Notifications.List)
	notifications.Post("/read-all", cfg.Notifications.MarkAllRead)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)
}
