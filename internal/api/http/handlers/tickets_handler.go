package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-engine/internal/api/dto"
	"github.com/spec-kit/triage-engine/internal/auth"
	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/service"
	apperrors "github.com/spec-kit/triage-engine/pkg/errorutil"
)

// TicketsHandler manages the ticket lifecycle endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := service.ListFilter{
		Status:          c.Query("status"),
		Severity:        c.Query("severity"),
		Department:      c.Query("department"),
		SourceDashboard: c.Query("source_dashboard"),
		Search:          c.Query("search"),
		CreatedFrom:     parseTime(c.Query("created_from")),
		Page:            parseInt(c.Query("page"), 1),
		Limit:           parseInt(c.Query("limit"), 20),
		SortBy:          c.Query("sort_by", "createdAt"),
		SortOrder:       c.Query("sort_order", "desc"),
	}

	result, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}

	items := make([]dto.TicketResponse, 0, len(result.Tickets))
	for i := range result.Tickets {
		items = append(items, ticketResponse(&result.Tickets[i]))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"pagination": dto.PaginationResponse{
			Total: result.Pagination.Total,
			Page:  result.Pagination.Page,
			Limit: result.Pagination.Limit,
			Pages: result.Pagination.Pages,
		},
	})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	detail, err := h.service.GetTicketByID(c.UserContext(), c.Params("id"), viewerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetailResponse(detail)})
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	subject := req.NormalizedSubject()
	description := req.NormalizedDescription()
	if subject == "" && description == "" {
		return apperrors.NewValidationError("subject or description required", nil)
	}

	actor := auth.ActorFromContext(c)
	source := req.SourceDashboard
	if source == "" {
		source = actor.Dashboard
	}

	detail, err := h.service.CreateTicket(c.UserContext(), service.CreateTicketInput{
		Subject:         subject,
		Description:     description,
		Category:        req.Category,
		Type:            req.Type,
		Severity:        req.Severity,
		SourceDashboard: source,
		TenantID:        req.TenantID,
		OrgID:           req.OrgID,
		CreatedBy:       actor.ID,
		Tags:            req.Tags,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketDetailResponse(detail)})
}

// UpdateTicket PATCH /api/tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	detail, err := h.service.UpdateTicket(c.UserContext(), c.Params("id"), service.UpdateTicketPatch{
		Status:               req.Status,
		AssignedTo:           req.AssignedTo,
		AssignedToDepartment: req.AssignedToDepartment,
		Severity:             req.Severity,
		Escalated:            req.Escalated,
		ResolutionNotes:      req.ResolutionNotes,
	}, viewerFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetailResponse(detail)})
}

// RouteTicket POST /api/tickets/:id/route.
func (h *TicketsHandler) RouteTicket(c *fiber.Ctx) error {
	outcome, err := h.service.RouteTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": outcome})
}

// AddMessage POST /api/tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	var req dto.AddMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}

	attachments := make([]domain.AttachmentReference, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		attachments = append(attachments, domain.AttachmentReference{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}

	msg, err := h.service.AddMessage(c.UserContext(), c.Params("id"), service.MessageInput{
		Body:        req.Body,
		Internal:    req.Internal,
		Attachments: attachments,
	}, viewerFrom(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// GetTicketStats GET /api/tickets/stats.
func (h *TicketsHandler) GetTicketStats(c *fiber.Ctx) error {
	stats, err := h.service.GetTicketStats(c.UserContext(), c.Query("time_range", "month"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

func viewerFrom(c *fiber.Ctx) service.Viewer {
	actor := auth.ActorFromContext(c)
	return service.Viewer{ID: actor.ID, Staff: actor.Staff}
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func ticketResponse(t *service.EnrichedTicket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                   t.ID,
		TicketNumber:         t.TicketNumber,
		TenantID:             t.TenantID,
		OrgID:                t.OrgID,
		CreatedBy:            t.CreatedBy,
		Type:                 t.Type,
		Category:             t.Category,
		Severity:             t.Severity,
		SourceDashboard:      t.SourceDashboard,
		Status:               t.Status,
		Subject:              t.Subject,
		Description:          t.Description,
		AssignedTo:           t.AssignedTo,
		AssignedToDepartment: t.AssignedToDepartment,
		Escalated:            t.Escalated,
		Tags:                 t.Tags,
		ResolvedBy:           t.ResolvedBy,
		ResolvedAt:           t.ResolvedAt,
		Resolution:           t.Resolution,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
		PriorityScore:        t.PriorityScore,
		SLA:                  dto.SLAResponseFrom(t.SLA),
		Routing: dto.RoutingResponse{
			Department: t.Routing.Department,
			Confidence: t.Routing.Confidence,
		},
		CanAutoRoute: t.CanAutoRoute,
	}
}

func ticketDetailResponse(detail *service.TicketDetail) dto.TicketDetailResponse {
	msgs := make([]dto.TicketMessageResponse, 0, len(detail.Messages))
	for i := range detail.Messages {
		msgs = append(msgs, *messageResponse(&detail.Messages[i]))
	}
	audit := make([]dto.AuditEntryResponse, 0, len(detail.AuditTrail))
	for _, entry := range detail.AuditTrail {
		audit = append(audit, dto.AuditEntryResponse{
			Action:      entry.Action,
			PerformedBy: entry.PerformedBy,
			PerformedAt: entry.PerformedAt,
			Changes:     entry.Changes,
		})
	}
	return dto.TicketDetailResponse{
		TicketResponse: ticketResponse(&detail.EnrichedTicket),
		Messages:       msgs,
		AuditTrail:     audit,
		Suggestions:    dto.SuggestionResponsesFrom(detail.Suggestions),
	}
}

func messageResponse(msg *domain.TicketMessage) *dto.TicketMessageResponse {
	attachments := make([]dto.AttachmentResponse, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, dto.AttachmentResponse{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.MimeType,
			SizeBytes:  att.SizeBytes,
		})
	}
	return &dto.TicketMessageResponse{
		ID:          msg.ID,
		Sender:      msg.Sender,
		Body:        msg.Body,
		Internal:    msg.Internal,
		Attachments: attachments,
		CreatedAt:   msg.CreatedAt,
	}
}
