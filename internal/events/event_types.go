package events

import (
	"time"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket.created"
	EventTicketUpdated  EventType = "ticket.updated"
	EventTicketRouted   EventType = "ticket.routed"
	EventTicketResolved EventType = "ticket.resolved"
	// EventTicketAlert fires alongside created/updated when a ticket sits
	// at severity high or critical.
	EventTicketAlert EventType = "ticket.alert"
)

// AllTypes lists every event type, for sinks that subscribe to the full
// stream.
func AllTypes() []EventType {
	return []EventType{
		EventTicketCreated,
		EventTicketUpdated,
		EventTicketRouted,
		EventTicketResolved,
		EventTicketAlert,
	}
}

// Event is a logical notification emitted after a successful mutation.
// Delivery to subscribers is the sink's responsibility.
type Event struct {
	ID           string      `json:"id"`
	Type         EventType   `json:"type"`
	TicketID     string      `json:"ticket_id"`
	TicketNumber string      `json:"ticket_number,omitempty"`
	Actor        string      `json:"actor,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Department *domain.Department     `json:"department,omitempty"`
	Severity   domain.Severity        `json:"severity"`
	Source     domain.SourceDashboard `json:"source"`
	Subject    string                 `json:"subject"`
}

// TicketUpdatedPayload payload. Changes carries the raw patch.
type TicketUpdatedPayload struct {
	Status  domain.TicketStatus `json:"status"`
	Changes map[string]any      `json:"changes"`
}

// TicketRoutedPayload payload.
type TicketRoutedPayload struct {
	Department domain.Department `json:"department"`
	Confidence float64           `json:"confidence"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	Status     domain.TicketStatus `json:"status"`
	ResolvedBy string              `json:"resolved_by"`
}

// TicketAlertPayload payload.
type TicketAlertPayload struct {
	Severity domain.Severity `json:"severity"`
	Subject  string          `json:"subject"`
}
