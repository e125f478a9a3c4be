package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/triage-engine/internal/clock"
	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/repository"
	"github.com/spec-kit/triage-engine/internal/triage"
	apperrors "github.com/spec-kit/triage-engine/pkg/errorutil"
)

// TicketService orchestrates the pure triage components against the record
// store. It is the only component with side effects; store round-trips are
// its sole suspension points.
type TicketService struct {
	tickets    repository.TicketRepository
	numbers    TicketNumberGenerator
	dispatcher events.Dispatcher
	clock      clock.Clock
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Numbers    TicketNumberGenerator
	Dispatcher events.Dispatcher
	Clock      clock.Clock
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	c := deps.Clock
	if c == nil {
		c = clock.System()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		numbers:    deps.Numbers,
		dispatcher: deps.Dispatcher,
		clock:      c,
	}
}

// ListFilter describes list parameters. Enum fields accept "all" or empty
// for no constraint.
type ListFilter struct {
	Status          string
	Severity        string
	Department      string
	SourceDashboard string
	Search          string
	CreatedFrom     *time.Time
	Page            int
	Limit           int
	SortBy          string
	SortOrder       string
}

// Viewer identifies who is reading or mutating a ticket. Internal notes
// stay hidden from non-staff viewers, and only staff can author them.
type Viewer struct {
	ID    string
	Staff bool
}

// EnrichedTicket is a ticket with the read-time computed triage view.
type EnrichedTicket struct {
	domain.Ticket
	PriorityScore int                `json:"priority_score"`
	SLA           triage.SLAInfo     `json:"sla"`
	Routing       triage.RouteResult `json:"routing"`
	CanAutoRoute  bool               `json:"can_auto_route"`
}

// TicketDetail adds resolution suggestions to the enriched view.
type TicketDetail struct {
	EnrichedTicket
	Suggestions []triage.Suggestion `json:"suggestions"`
}

// Pagination describes a result window.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// ListResult is a page of enriched tickets.
type ListResult struct {
	Tickets    []EnrichedTicket `json:"tickets"`
	Pagination Pagination       `json:"pagination"`
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Subject         string
	Description     string
	Category        string
	Type            string
	Severity        string
	SourceDashboard string
	TenantID        string
	OrgID           *string
	CreatedBy       string
	Tags            []string
}

// UpdateTicketPatch carries update fields; nil means untouched.
type UpdateTicketPatch struct {
	Status               *string
	AssignedTo           *string
	AssignedToDepartment *string
	Severity             *string
	Escalated            *bool
	ResolutionNotes      *string
}

// RouteOutcome is the result of a routing attempt. An already-routed ticket
// is a soft failure, not an error.
type RouteOutcome struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Department domain.Department `json:"department,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

// MessageInput describes a thread message payload.
type MessageInput struct {
	Body        string
	Internal    bool
	Attachments []domain.AttachmentReference
}

// TicketStats is the aggregated report for a time window.
type TicketStats struct {
	Total                  int            `json:"total"`
	Open                   int            `json:"open"`
	Resolved               int            `json:"resolved"`
	ByStatus               map[string]int `json:"by_status"`
	BySeverity             map[string]int `json:"by_severity"`
	ByDepartment           map[string]int `json:"by_department"`
	BySource               map[string]int `json:"by_source"`
	AvgResolutionTimeHours float64        `json:"avg_resolution_time_hours"`
	SLABreaches            int            `json:"sla_breaches"`
	ResolutionRate         int            `json:"resolution_rate"`
}

// ListTickets returns a page of tickets enriched with freshly computed
// score, SLA and routing.
func (s *TicketService) ListTickets(ctx context.Context, filter ListFilter) (*ListResult, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	repoFilter := repoFilterFrom(filter)
	total, err := s.tickets.Count(ctx, repoFilter)
	if err != nil {
		observability.TicketOperations.WithLabelValues("list", "error").Inc()
		return nil, apperrors.MapError(err)
	}

	now := s.clock.Now()
	var enriched []EnrichedTicket
	if filter.SortBy == "priority" {
		enriched, err = s.listByPriority(ctx, repoFilter, filter.SortOrder, page, limit, now)
	} else {
		repoFilter.SortBy = sortKey(filter.SortBy)
		repoFilter.SortOrder = filter.SortOrder
		repoFilter.Limit = limit
		repoFilter.Offset = (page - 1) * limit

		var tickets []domain.Ticket
		tickets, err = s.tickets.List(ctx, repoFilter)
		if err == nil {
			enriched = s.enrichAll(tickets, now)
		}
	}
	if err != nil {
		observability.TicketOperations.WithLabelValues("list", "error").Inc()
		return nil, apperrors.MapError(err)
	}

	observability.TicketOperations.WithLabelValues("list", "ok").Inc()
	return &ListResult{
		Tickets: enriched,
		Pagination: Pagination{
			Total: total,
			Page:  page,
			Limit: limit,
			Pages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}, nil
}

// listByPriority pulls the full filtered window, sorts by the computed
// score, then paginates the in-memory order. Priority is not a stored
// field, so paginating the store query first would let page boundaries
// disagree with score order.
func (s *TicketService) listByPriority(ctx context.Context, repoFilter repository.TicketFilter, sortOrder string, page, limit int, now time.Time) ([]EnrichedTicket, error) {
	repoFilter.SortBy = "created_at"
	repoFilter.SortOrder = sortOrder
	repoFilter.Limit = 0
	repoFilter.Offset = 0

	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	enriched := s.enrichAll(tickets, now)
	asc := strings.EqualFold(sortOrder, "asc")
	sort.SliceStable(enriched, func(i, j int) bool {
		if asc {
			return enriched[i].PriorityScore < enriched[j].PriorityScore
		}
		return enriched[i].PriorityScore > enriched[j].PriorityScore
	})

	start := (page - 1) * limit
	if start >= len(enriched) {
		return []EnrichedTicket{}, nil
	}
	end := start + limit
	if end > len(enriched) {
		end = len(enriched)
	}
	return enriched[start:end], nil
}

// GetTicketByID returns the enriched detail view including suggestions.
// Internal notes are stripped from the thread for non-staff viewers.
func (s *TicketService) GetTicketByID(ctx context.Context, id string, viewer Viewer) (*TicketDetail, error) {
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.Staff {
		ticket.Messages = publicMessages(ticket.Messages)
	}
	now := s.clock.Now()
	return &TicketDetail{
		EnrichedTicket: s.enrich(ticket, now),
		Suggestions:    triage.Suggest(ticket),
	}, nil
}

// CreateTicket validates input with the defaulting policy, classifies the
// content once to seed the department, anchors the SLA at creation time,
// persists and returns the enriched detail view.
func (s *TicketService) CreateTicket(ctx context.Context, input CreateTicketInput) (*TicketDetail, error) {
	now := s.clock.Now()

	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		subject = "Untitled Ticket"
	}
	severity := domain.SeverityOrDefault(input.Severity)
	tenantID := input.TenantID
	if tenantID == "" {
		tenantID = "default"
	}

	ticket := &domain.Ticket{
		TenantID:        tenantID,
		OrgID:           input.OrgID,
		CreatedBy:       input.CreatedBy,
		Type:            domain.TypeOrDefault(input.Type),
		Category:        input.Category,
		Severity:        severity,
		SourceDashboard: domain.SourceOrDefault(input.SourceDashboard),
		Status:          domain.TicketStatusOpen,
		Subject:         subject,
		Description:     strings.TrimSpace(input.Description),
		Tags:            input.Tags,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	routing := triage.Classify(ticket)
	ticket.AssignedToDepartment = &routing.Department

	number, err := s.numbers.Next(ctx, now)
	if err != nil {
		observability.TicketOperations.WithLabelValues("create", "error").Inc()
		return nil, apperrors.MapError(err)
	}
	ticket.TicketNumber = number

	targetHours := triage.TargetHours(severity)
	ticket.SLA = domain.SLASnapshot{
		TargetHours: targetHours,
		BreachTime:  now.Add(time.Duration(targetHours) * time.Hour),
		Status:      domain.SLAOnTime,
	}
	ticket.PriorityScore = triage.Score(ticket, now)

	if err := s.tickets.Create(ctx, ticket); err != nil {
		observability.TicketOperations.WithLabelValues("create", "error").Inc()
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketCreated,
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Actor:        input.CreatedBy,
		Payload: events.TicketCreatedPayload{
			Department: ticket.AssignedToDepartment,
			Severity:   ticket.Severity,
			Source:     ticket.SourceDashboard,
			Subject:    ticket.Subject,
		},
	})
	s.publishAlertIfUrgent(ctx, ticket)

	observability.TicketOperations.WithLabelValues("create", "ok").Inc()
	return s.GetTicketByID(ctx, ticket.ID, Viewer{ID: input.CreatedBy})
}

// UpdateTicket applies the patch fields that are present, records one audit
// entry with the raw patch, recomputes the persisted score and returns the
// enriched detail.
func (s *TicketService) UpdateTicket(ctx context.Context, id string, patch UpdateTicketPatch, actor Viewer) (*TicketDetail, error) {
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		observability.TicketOperations.WithLabelValues("update", "error").Inc()
		return nil, err
	}
	now := s.clock.Now()
	changes := map[string]any{}
	resolved := false

	if patch.Status != nil {
		status, ok := domain.ParseStatus(*patch.Status)
		if !ok {
			observability.TicketOperations.WithLabelValues("update", "error").Inc()
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": *patch.Status})
		}
		ticket.Status = status
		changes["status"] = *patch.Status
		if status == domain.TicketStatusResolved || status == domain.TicketStatusClosed {
			ticket.ResolvedAt = &now
			resolvedBy := actor.ID
			ticket.ResolvedBy = &resolvedBy
			resolved = true
		}
	}
	if patch.AssignedTo != nil {
		ticket.AssignedTo = patch.AssignedTo
		ticket.AssignedAt = &now
		changes["assigned_to"] = *patch.AssignedTo
	}
	if patch.AssignedToDepartment != nil {
		dept, ok := domain.ParseDepartment(*patch.AssignedToDepartment)
		if !ok {
			observability.TicketOperations.WithLabelValues("update", "error").Inc()
			return nil, apperrors.NewValidationError("unknown department", map[string]any{"department": *patch.AssignedToDepartment})
		}
		ticket.AssignedToDepartment = &dept
		changes["assigned_to_department"] = *patch.AssignedToDepartment
	}
	if patch.Severity != nil {
		severity, ok := domain.ParseSeverity(*patch.Severity)
		if !ok {
			observability.TicketOperations.WithLabelValues("update", "error").Inc()
			return nil, apperrors.NewValidationError("unknown severity", map[string]any{"severity": *patch.Severity})
		}
		ticket.Severity = severity
		changes["severity"] = *patch.Severity
		// The breach clock re-anchors at the update instant rather than
		// preserving time already elapsed against the original target.
		// Inherited contract; see DESIGN.md before changing.
		targetHours := triage.TargetHours(severity)
		ticket.SLA = domain.SLASnapshot{
			TargetHours: targetHours,
			BreachTime:  now.Add(time.Duration(targetHours) * time.Hour),
			Status:      domain.SLAOnTime,
		}
	}
	if patch.Escalated != nil {
		ticket.Escalated = *patch.Escalated
		changes["escalated"] = *patch.Escalated
	}
	if patch.ResolutionNotes != nil {
		ticket.Resolution = *patch.ResolutionNotes
		changes["resolution_notes"] = *patch.ResolutionNotes
	}

	ticket.AuditTrail = append(ticket.AuditTrail, domain.AuditEntry{
		Action:      "updated",
		PerformedBy: actor.ID,
		PerformedAt: now,
		Changes:     changes,
	})
	ticket.PriorityScore = triage.Score(ticket, now)
	ticket.UpdatedAt = now

	if err := s.tickets.Update(ctx, ticket); err != nil {
		observability.TicketOperations.WithLabelValues("update", "error").Inc()
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketUpdated,
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Actor:        actor.ID,
		Payload: events.TicketUpdatedPayload{
			Status:  ticket.Status,
			Changes: changes,
		},
	})
	if resolved {
		s.publishEvent(ctx, events.Event{
			Type:         events.EventTicketResolved,
			TicketID:     ticket.ID,
			TicketNumber: ticket.TicketNumber,
			Actor:        actor.ID,
			Payload: events.TicketResolvedPayload{
				Status:     ticket.Status,
				ResolvedBy: actor.ID,
			},
		})
	}
	s.publishAlertIfUrgent(ctx, ticket)

	observability.TicketOperations.WithLabelValues("update", "ok").Inc()
	return s.GetTicketByID(ctx, ticket.ID, actor)
}

// RouteTicket assigns a department by content classification. Routing is
// advisory and idempotent: an already-assigned ticket yields a soft
// failure, and the department write is a single conditional update so
// concurrent routing attempts cannot both win.
func (s *TicketService) RouteTicket(ctx context.Context, id string) (*RouteOutcome, error) {
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		observability.TicketOperations.WithLabelValues("route", "error").Inc()
		return nil, err
	}
	if ticket.AssignedToDepartment != nil {
		observability.TicketOperations.WithLabelValues("route", "noop").Inc()
		return &RouteOutcome{
			Success: false,
			Message: "ticket already assigned to department",
		}, nil
	}

	routing := triage.Classify(ticket)
	won, err := s.tickets.AssignDepartment(ctx, id, routing.Department, routing.Severity)
	if err != nil {
		observability.TicketOperations.WithLabelValues("route", "error").Inc()
		return nil, apperrors.MapError(err)
	}
	if !won {
		// Lost the race to a concurrent routing request.
		observability.TicketOperations.WithLabelValues("route", "noop").Inc()
		return &RouteOutcome{
			Success: false,
			Message: "ticket already assigned to department",
		}, nil
	}

	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketRouted,
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Payload: events.TicketRoutedPayload{
			Department: routing.Department,
			Confidence: routing.Confidence,
		},
	})

	observability.TicketOperations.WithLabelValues("route", "ok").Inc()
	return &RouteOutcome{
		Success:    true,
		Department: routing.Department,
		Confidence: routing.Confidence,
	}, nil
}

// AddMessage appends an entry to the ticket's conversation thread. The
// internal flag only sticks for staff authors.
func (s *TicketService) AddMessage(ctx context.Context, id string, input MessageInput, actor Viewer) (*domain.TicketMessage, error) {
	ticket, err := s.loadTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	msg := domain.TicketMessage{
		ID:          uuid.NewString(),
		Sender:      actor.ID,
		Body:        strings.TrimSpace(input.Body),
		Internal:    input.Internal && actor.Staff,
		Attachments: input.Attachments,
		CreatedAt:   now,
	}
	ticket.Messages = append(ticket.Messages, msg)
	ticket.UpdatedAt = now

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	return &msg, nil
}

// GetTicketStats aggregates a one-pass report over the requested window.
func (s *TicketService) GetTicketStats(ctx context.Context, timeRange string) (*TicketStats, error) {
	since := windowStart(timeRange, s.clock.Now())
	agg, err := s.tickets.Aggregate(ctx, since)
	if err != nil {
		observability.TicketOperations.WithLabelValues("stats", "error").Inc()
		return nil, apperrors.MapError(err)
	}

	resolutionRate := 0
	if agg.Total > 0 {
		resolutionRate = int(math.Round(float64(agg.Resolved) / float64(agg.Total) * 100))
	}

	observability.TicketOperations.WithLabelValues("stats", "ok").Inc()
	return &TicketStats{
		Total:                  agg.Total,
		Open:                   agg.Open,
		Resolved:               agg.Resolved,
		ByStatus:               agg.ByStatus,
		BySeverity:             agg.BySeverity,
		ByDepartment:           agg.ByDepartment,
		BySource:               agg.BySource,
		AvgResolutionTimeHours: math.Round(agg.AvgResolutionHours*10) / 10,
		SLABreaches:            agg.SLABreaches,
		ResolutionRate:         resolutionRate,
	}, nil
}

func (s *TicketService) loadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) enrich(ticket *domain.Ticket, now time.Time) EnrichedTicket {
	var routing triage.RouteResult
	if ticket.AssignedToDepartment != nil {
		routing = triage.RouteResult{
			Department: *ticket.AssignedToDepartment,
			Severity:   ticket.Severity,
			Confidence: 1,
		}
	} else {
		routing = triage.Classify(ticket)
	}
	return EnrichedTicket{
		Ticket:        *ticket,
		PriorityScore: triage.Score(ticket, now),
		SLA:           triage.ComputeSLA(ticket.Severity, ticket.CreatedAt, now),
		Routing:       routing,
		CanAutoRoute:  ticket.AssignedToDepartment == nil,
	}
}

// publicMessages strips internal notes from the thread.
func publicMessages(msgs []domain.TicketMessage) []domain.TicketMessage {
	filtered := make([]domain.TicketMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Internal {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered
}

func (s *TicketService) enrichAll(tickets []domain.Ticket, now time.Time) []EnrichedTicket {
	enriched := make([]EnrichedTicket, 0, len(tickets))
	for i := range tickets {
		enriched = append(enriched, s.enrich(&tickets[i], now))
	}
	return enriched
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	observability.EventsEmitted.WithLabelValues(string(event.Type)).Inc()
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *TicketService) publishAlertIfUrgent(ctx context.Context, ticket *domain.Ticket) {
	if ticket.Severity != domain.SeverityHigh && ticket.Severity != domain.SeverityCritical {
		return
	}
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketAlert,
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Payload: events.TicketAlertPayload{
			Severity: ticket.Severity,
			Subject:  ticket.Subject,
		},
	})
}

func repoFilterFrom(filter ListFilter) repository.TicketFilter {
	repoFilter := repository.TicketFilter{
		Search:      filter.Search,
		CreatedFrom: filter.CreatedFrom,
	}
	if value := filterValue(filter.Status); value != "" {
		status := domain.TicketStatus(value)
		repoFilter.Status = &status
	}
	if value := filterValue(filter.Severity); value != "" {
		severity := domain.Severity(value)
		repoFilter.Severity = &severity
	}
	if value := filterValue(filter.Department); value != "" {
		dept := domain.Department(value)
		repoFilter.Department = &dept
	}
	if value := filterValue(filter.SourceDashboard); value != "" {
		source := domain.SourceDashboard(value)
		repoFilter.SourceDashboard = &source
	}
	return repoFilter
}

func filterValue(value string) string {
	if value == "all" {
		return ""
	}
	return value
}

var sortKeys = map[string]string{
	"createdAt":    "created_at",
	"created_at":   "created_at",
	"updatedAt":    "updated_at",
	"updated_at":   "updated_at",
	"severity":     "severity",
	"status":       "status",
	"ticketNumber": "ticket_number",
}

func sortKey(sortBy string) string {
	if key, ok := sortKeys[sortBy]; ok {
		return key
	}
	return "created_at"
}

func windowStart(timeRange string, now time.Time) time.Time {
	switch timeRange {
	case "day":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case "week":
		return now.AddDate(0, 0, -7)
	case "quarter":
		return now.AddDate(0, -3, 0)
	case "year":
		return now.AddDate(-1, 0, 0)
	default: // month
		return now.AddDate(0, -1, 0)
	}
}
