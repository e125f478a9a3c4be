package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/triage"
)

// CreateTicketRequest payload. Older dashboard clients send title/message
// instead of subject/description; both spellings are accepted here and
// normalized before anything downstream sees them.
type CreateTicketRequest struct {
	Subject         string   `json:"subject"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Message         string   `json:"message"`
	Category        string   `json:"category"`
	Type            string   `json:"type"`
	Severity        string   `json:"severity"`
	SourceDashboard string   `json:"source_dashboard"`
	TenantID        string   `json:"tenant_id"`
	OrgID           *string  `json:"org_id"`
	Tags            []string `json:"tags"`
}

// NormalizedSubject resolves the subject/title alias pair.
func (r *CreateTicketRequest) NormalizedSubject() string {
	if s := strings.TrimSpace(r.Subject); s != "" {
		return s
	}
	return strings.TrimSpace(r.Title)
}

// NormalizedDescription resolves the description/message alias pair.
func (r *CreateTicketRequest) NormalizedDescription() string {
	if d := strings.TrimSpace(r.Description); d != "" {
		return d
	}
	return strings.TrimSpace(r.Message)
}

// UpdateTicketRequest payload; absent fields leave the ticket untouched.
type UpdateTicketRequest struct {
	Status               *string `json:"status"`
	AssignedTo           *string `json:"assigned_to"`
	AssignedToDepartment *string `json:"assigned_to_department"`
	Severity             *string `json:"severity"`
	Escalated            *bool   `json:"escalated"`
	ResolutionNotes      *string `json:"resolution_notes"`
}

// AddMessageRequest payload.
type AddMessageRequest struct {
	Body        string              `json:"body"`
	Internal    bool                `json:"internal"`
	Attachments []AttachmentRequest `json:"attachments"`
}

// AttachmentRequest describes attachment input.
type AttachmentRequest struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// SLAResponse is the countdown view computed at read time.
type SLAResponse struct {
	TargetHours     int              `json:"target_hours"`
	BreachTime      time.Time        `json:"breach_time"`
	ElapsedHours    float64          `json:"elapsed_hours"`
	RemainingHours  float64          `json:"remaining_hours"`
	ProgressPercent float64          `json:"progress_percent"`
	Status          domain.SLAStatus `json:"status"`
}

// RoutingResponse describes department placement.
type RoutingResponse struct {
	Department domain.Department `json:"department"`
	Confidence float64           `json:"confidence"`
}

// SuggestionResponse is one resolution suggestion.
type SuggestionResponse struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// TicketResponse is the enriched ticket view.
type TicketResponse struct {
	ID                   string                 `json:"id"`
	TicketNumber         string                 `json:"ticket_number"`
	TenantID             string                 `json:"tenant_id"`
	OrgID                *string                `json:"org_id,omitempty"`
	CreatedBy            string                 `json:"created_by"`
	Type                 domain.TicketType      `json:"type"`
	Category             string                 `json:"category,omitempty"`
	Severity             domain.Severity        `json:"severity"`
	SourceDashboard      domain.SourceDashboard `json:"source_dashboard"`
	Status               domain.TicketStatus    `json:"status"`
	Subject              string                 `json:"subject"`
	Description          string                 `json:"description"`
	AssignedTo           *string                `json:"assigned_to,omitempty"`
	AssignedToDepartment *domain.Department     `json:"assigned_to_department,omitempty"`
	Escalated            bool                   `json:"escalated"`
	Tags                 []string               `json:"tags,omitempty"`
	ResolvedBy           *string                `json:"resolved_by,omitempty"`
	ResolvedAt           *time.Time             `json:"resolved_at,omitempty"`
	Resolution           string                 `json:"resolution,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`

	PriorityScore int             `json:"priority_score"`
	SLA           SLAResponse     `json:"sla"`
	Routing       RoutingResponse `json:"routing"`
	CanAutoRoute  bool            `json:"can_auto_route"`
}

// TicketDetailResponse adds the thread, audit trail and suggestions.
type TicketDetailResponse struct {
	TicketResponse
	Messages    []TicketMessageResponse `json:"messages"`
	AuditTrail  []AuditEntryResponse    `json:"audit_trail"`
	Suggestions []SuggestionResponse    `json:"suggestions"`
}

// TicketMessageResponse represents a thread message.
type TicketMessageResponse struct {
	ID          string               `json:"id"`
	Sender      string               `json:"sender"`
	Body        string               `json:"body"`
	Internal    bool                 `json:"internal"`
	Attachments []AttachmentResponse `json:"attachments,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

// AuditEntryResponse is one recorded mutation.
type AuditEntryResponse struct {
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by"`
	PerformedAt time.Time      `json:"performed_at"`
	Changes     map[string]any `json:"changes"`
}

// PaginationResponse describes the result window.
type PaginationResponse struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// SLAResponseFrom maps the computed countdown.
func SLAResponseFrom(info triage.SLAInfo) SLAResponse {
	return SLAResponse{
		TargetHours:     info.TargetHours,
		BreachTime:      info.BreachTime,
		ElapsedHours:    info.ElapsedHours,
		RemainingHours:  info.RemainingHours,
		ProgressPercent: info.ProgressPercent,
		Status:          info.Status,
	}
}

// SuggestionResponsesFrom maps suggestions.
func SuggestionResponsesFrom(suggestions []triage.Suggestion) []SuggestionResponse {
	resp := make([]SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		resp = append(resp, SuggestionResponse{
			ID:         s.ID,
			Text:       s.Text,
			Confidence: s.Confidence,
			Source:     s.Source,
		})
	}
	return resp
}
