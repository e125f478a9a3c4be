package domain

import "time"

// TicketStatus enumerates workflow states for tickets. Transitions are
// caller-driven; resolved/closed additionally require resolution metadata.
type TicketStatus string

const (
	TicketStatusOpen               TicketStatus = "open"
	TicketStatusInProgress         TicketStatus = "in_progress"
	TicketStatusWaitingForCustomer TicketStatus = "waiting_for_customer"
	TicketStatusResolved           TicketStatus = "resolved"
	TicketStatusClosed             TicketStatus = "closed"
	TicketStatusRejected           TicketStatus = "rejected"
)

// Severity is the caller-assigned urgency tier. It drives both the SLA
// target and the priority score weight.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// TicketType categorizes the request.
type TicketType string

const (
	TypeTrialExtension   TicketType = "trial_extension"
	TypePlanUpgrade      TicketType = "plan_upgrade"
	TypeTechnicalSupport TicketType = "technical_support"
	TypeBillingIssue     TicketType = "billing_issue"
	TypeFeatureRequest   TicketType = "feature_request"
	TypeBugReport        TicketType = "bug_report"
	TypeGeneralInquiry   TicketType = "general_inquiry"
)

// SourceDashboard identifies which caller surface originated the ticket.
type SourceDashboard string

const (
	SourceAdmin       SourceDashboard = "admin"
	SourceSchoolAdmin SourceDashboard = "school_admin"
	SourceCSR         SourceDashboard = "csr"
	SourceTeacher     SourceDashboard = "teacher"
	SourceParent      SourceDashboard = "parent"
	SourceStudent     SourceDashboard = "student"
)

// Department is a handling department assigned by routing.
type Department string

const (
	DepartmentBilling   Department = "billing"
	DepartmentSecurity  Department = "security"
	DepartmentTechnical Department = "technical"
	DepartmentProduct   Department = "product"
	DepartmentSupport   Department = "support"
	DepartmentEducation Department = "education"
	DepartmentGeneral   Department = "general"
)

// SLAStatus describes where a ticket sits relative to its response window.
type SLAStatus string

const (
	SLAOnTime   SLAStatus = "on_time"
	SLAWarning  SLAStatus = "warning"
	SLAAtRisk   SLAStatus = "at_risk"
	SLABreached SLAStatus = "breached"
)

// SLASnapshot is the SLA state persisted at creation or severity-change
// time. Read paths recompute a fresh view; the snapshot's status is what
// stats reports count breaches against.
type SLASnapshot struct {
	TargetHours int       `json:"target_hours"`
	BreachTime  time.Time `json:"breach_time"`
	Status      SLAStatus `json:"status"`
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string `json:"id"`
	TicketNumber string `json:"ticket_number"`

	TenantID   string     `json:"tenant_id"`
	OrgID      *string    `json:"org_id,omitempty"`
	CreatedBy  string     `json:"created_by"`
	AssignedTo *string    `json:"assigned_to,omitempty"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`

	Type            TicketType      `json:"type"`
	Category        string          `json:"category"`
	Severity        Severity        `json:"severity"`
	SourceDashboard SourceDashboard `json:"source_dashboard"`

	Status               TicketStatus `json:"status"`
	AssignedToDepartment *Department  `json:"assigned_to_department,omitempty"`
	Escalated            bool         `json:"escalated"`

	Subject     string          `json:"subject"`
	Description string          `json:"description"`
	Messages    []TicketMessage `json:"messages,omitempty"`

	SLA SLASnapshot `json:"sla"`

	ResolvedBy *string    `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Resolution string     `json:"resolution,omitempty"`

	ApprovalRequired bool       `json:"approval_required"`
	ApprovedBy       *string    `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`

	AuditTrail     []AuditEntry `json:"audit_trail,omitempty"`
	Tags           []string     `json:"tags,omitempty"`
	RelatedTickets []string     `json:"related_tickets,omitempty"`

	// PriorityScore is persisted at write time for external dashboards.
	// Read paths recompute a fresh score and never trust this field.
	PriorityScore int `json:"priority_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ParseSeverity validates a severity value.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(s), true
	}
	return "", false
}

// SeverityOrDefault returns the parsed severity, falling back to medium.
func SeverityOrDefault(s string) Severity {
	if sev, ok := ParseSeverity(s); ok {
		return sev
	}
	return SeverityMedium
}

// ParseStatus validates a workflow status value.
func ParseStatus(s string) (TicketStatus, bool) {
	switch TicketStatus(s) {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusWaitingForCustomer,
		TicketStatusResolved, TicketStatusClosed, TicketStatusRejected:
		return TicketStatus(s), true
	}
	return "", false
}

// ParseDepartment validates a department value.
func ParseDepartment(s string) (Department, bool) {
	switch Department(s) {
	case DepartmentBilling, DepartmentSecurity, DepartmentTechnical, DepartmentProduct,
		DepartmentSupport, DepartmentEducation, DepartmentGeneral:
		return Department(s), true
	}
	return "", false
}

// ParseSourceDashboard validates a source dashboard value.
func ParseSourceDashboard(s string) (SourceDashboard, bool) {
	switch SourceDashboard(s) {
	case SourceAdmin, SourceSchoolAdmin, SourceCSR, SourceTeacher, SourceParent, SourceStudent:
		return SourceDashboard(s), true
	}
	return "", false
}

// SourceOrDefault returns the parsed source, falling back to student.
func SourceOrDefault(s string) SourceDashboard {
	if src, ok := ParseSourceDashboard(s); ok {
		return src
	}
	return SourceStudent
}

// ParseTicketType validates a ticket type value.
func ParseTicketType(s string) (TicketType, bool) {
	switch TicketType(s) {
	case TypeTrialExtension, TypePlanUpgrade, TypeTechnicalSupport, TypeBillingIssue,
		TypeFeatureRequest, TypeBugReport, TypeGeneralInquiry:
		return TicketType(s), true
	}
	return "", false
}

// TypeOrDefault returns the parsed type, falling back to general_inquiry.
func TypeOrDefault(s string) TicketType {
	if t, ok := ParseTicketType(s); ok {
		return t
	}
	return TypeGeneralInquiry
}
