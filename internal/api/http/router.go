package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-engine/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
	Auth    fiber.Handler
}

// RegisterRoutes wires HTTP routes. The stats route registers before the
// :id route so "stats" never binds as a ticket id.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api", cfg.Auth)
	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/stats", cfg.Tickets.GetTicketStats)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/route", cfg.Tickets.RouteTicket)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
}
