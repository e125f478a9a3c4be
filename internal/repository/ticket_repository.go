package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// TicketFilter captures list/count query parameters. A nil field means no
// constraint. Limit <= 0 means no LIMIT clause; the lifecycle service uses
// that to pull the full filtered window for in-memory priority sorting.
type TicketFilter struct {
	Status          *domain.TicketStatus
	Severity        *domain.Severity
	Department      *domain.Department
	SourceDashboard *domain.SourceDashboard
	Search          string
	CreatedFrom     *time.Time
	SortBy          string
	SortOrder       string
	Limit           int
	Offset          int
}

// StatsAggregate holds the raw one-pass aggregation results for a window.
type StatsAggregate struct {
	Total              int
	Open               int
	Resolved           int
	ByStatus           map[string]int
	BySeverity         map[string]int
	ByDepartment       map[string]int
	BySource           map[string]int
	AvgResolutionHours float64
	SLABreaches        int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
	// AssignDepartment routes a ticket with a single conditional update so
	// concurrent routing requests cannot both win. The severity hint only
	// applies when the ticket has no severity yet. Returns false when the
	// ticket was already assigned.
	AssignDepartment(ctx context.Context, id string, dept domain.Department, severityHint domain.Severity) (bool, error)
	Aggregate(ctx context.Context, since time.Time) (*StatsAggregate, error)
}

var sortColumns = map[string]string{
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"severity":      "severity",
	"status":        "status",
	"ticket_number": "ticket_number",
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the pgx-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, tenant_id, org_id, created_by, assigned_to, assigned_at,
       type, category, severity, source_dashboard, status, assigned_to_department, escalated,
       subject, description, messages, sla, resolved_by, resolved_at, resolution,
       approval_required, approved_by, approved_at, rejected_at, rejection_reason,
       audit_trail, tags, related_tickets, priority_score, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	messages, sla, audit, err := marshalDocuments(ticket)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (ticket_number, tenant_id, org_id, created_by, assigned_to, assigned_at,
            type, category, severity, source_dashboard, status, assigned_to_department, escalated,
            subject, description, messages, sla, resolved_by, resolved_at, resolution,
            approval_required, approved_by, approved_at, rejected_at, rejection_reason,
            audit_trail, tags, related_tickets, priority_score, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
                $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$30)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		ticket.TicketNumber,
		ticket.TenantID,
		ticket.OrgID,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.AssignedAt,
		ticket.Type,
		ticket.Category,
		ticket.Severity,
		ticket.SourceDashboard,
		ticket.Status,
		departmentValue(ticket.AssignedToDepartment),
		ticket.Escalated,
		ticket.Subject,
		ticket.Description,
		messages,
		sla,
		ticket.ResolvedBy,
		ticket.ResolvedAt,
		ticket.Resolution,
		ticket.ApprovalRequired,
		ticket.ApprovedBy,
		ticket.ApprovedAt,
		ticket.RejectedAt,
		ticket.RejectionReason,
		audit,
		ticket.Tags,
		ticket.RelatedTickets,
		ticket.PriorityScore,
		ticket.CreatedAt,
	).Scan(&ticket.ID)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	messages, sla, audit, err := marshalDocuments(ticket)
	if err != nil {
		return err
	}
	const query = `
        UPDATE tickets SET assigned_to=$1, assigned_at=$2, type=$3, category=$4, severity=$5,
            status=$6, assigned_to_department=$7, escalated=$8, subject=$9, description=$10,
            messages=$11, sla=$12, resolved_by=$13, resolved_at=$14, resolution=$15,
            approval_required=$16, approved_by=$17, approved_at=$18, rejected_at=$19,
            rejection_reason=$20, audit_trail=$21, tags=$22, related_tickets=$23,
            priority_score=$24, updated_at=$25
        WHERE id=$26`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.AssignedTo,
		ticket.AssignedAt,
		ticket.Type,
		ticket.Category,
		ticket.Severity,
		ticket.Status,
		departmentValue(ticket.AssignedToDepartment),
		ticket.Escalated,
		ticket.Subject,
		ticket.Description,
		messages,
		sla,
		ticket.ResolvedBy,
		ticket.ResolvedAt,
		ticket.Resolution,
		ticket.ApprovalRequired,
		ticket.ApprovedBy,
		ticket.ApprovedAt,
		ticket.RejectedAt,
		ticket.RejectionReason,
		audit,
		ticket.Tags,
		ticket.RelatedTickets,
		ticket.PriorityScore,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	row := r.pool.QueryRow(ctx, query, id)
	return scanTicket(row)
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses, args := filterClauses(filter)

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		direction = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s %s`,
		ticketColumns, strings.Join(clauses, " AND "), column, direction)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	clauses, args := filterClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets WHERE %s`, strings.Join(clauses, " AND "))

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) AssignDepartment(ctx context.Context, id string, dept domain.Department, severityHint domain.Severity) (bool, error) {
	const query = `
        UPDATE tickets
        SET assigned_to_department=$1,
            severity=CASE WHEN severity='' THEN $2 ELSE severity END,
            updated_at=NOW()
        WHERE id=$3 AND assigned_to_department IS NULL`
	cmd, err := r.pool.Exec(ctx, query, dept, severityHint, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) Aggregate(ctx context.Context, since time.Time) (*StatsAggregate, error) {
	agg := &StatsAggregate{
		ByStatus:     map[string]int{},
		BySeverity:   map[string]int{},
		ByDepartment: map[string]int{},
		BySource:     map[string]int{},
	}

	const totalsQuery = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='open'),
               COUNT(*) FILTER (WHERE status='resolved'),
               COUNT(*) FILTER (WHERE sla->>'status'='breached'),
               COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at))/3600)
                   FILTER (WHERE status='resolved' AND resolved_at IS NOT NULL), 0)
        FROM tickets WHERE created_at >= $1`
	if err := r.pool.QueryRow(ctx, totalsQuery, since).Scan(
		&agg.Total, &agg.Open, &agg.Resolved, &agg.SLABreaches, &agg.AvgResolutionHours,
	); err != nil {
		return nil, err
	}

	groups := []struct {
		column string
		target map[string]int
	}{
		{"status", agg.ByStatus},
		{"severity", agg.BySeverity},
		{"assigned_to_department", agg.ByDepartment},
		{"source_dashboard", agg.BySource},
	}
	for _, group := range groups {
		query := fmt.Sprintf(`
            SELECT COALESCE(%s, ''), COUNT(*) FROM tickets
            WHERE created_at >= $1 GROUP BY 1 ORDER BY 2 DESC`, group.column)
		rows, err := r.pool.Query(ctx, query, since)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				rows.Close()
				return nil, err
			}
			group.target[key] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return agg, nil
}

func filterClauses(filter TicketFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Severity != nil {
		args = append(args, *filter.Severity)
		clauses = append(clauses, fmt.Sprintf("severity=$%d", len(args)))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("assigned_to_department=$%d", len(args)))
	}
	if filter.SourceDashboard != nil {
		args = append(args, *filter.SourceDashboard)
		clauses = append(clauses, fmt.Sprintf("source_dashboard=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if strings.TrimSpace(filter.Search) != "" {
		search := "%" + strings.TrimSpace(filter.Search) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(subject ILIKE %s OR description ILIKE %s OR ticket_number ILIKE %s)",
			placeholder, placeholder, placeholder))
	}

	return clauses, args
}

func marshalDocuments(ticket *domain.Ticket) (messages, sla, audit []byte, err error) {
	if messages, err = json.Marshal(ticket.Messages); err != nil {
		return nil, nil, nil, err
	}
	if sla, err = json.Marshal(ticket.SLA); err != nil {
		return nil, nil, nil, err
	}
	if audit, err = json.Marshal(ticket.AuditTrail); err != nil {
		return nil, nil, nil, err
	}
	return messages, sla, audit, nil
}

func departmentValue(dept *domain.Department) *string {
	if dept == nil {
		return nil
	}
	value := string(*dept)
	return &value
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket     domain.Ticket
		department *string
		messages   []byte
		sla        []byte
		audit      []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.TenantID,
		&ticket.OrgID,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.AssignedAt,
		&ticket.Type,
		&ticket.Category,
		&ticket.Severity,
		&ticket.SourceDashboard,
		&ticket.Status,
		&department,
		&ticket.Escalated,
		&ticket.Subject,
		&ticket.Description,
		&messages,
		&sla,
		&ticket.ResolvedBy,
		&ticket.ResolvedAt,
		&ticket.Resolution,
		&ticket.ApprovalRequired,
		&ticket.ApprovedBy,
		&ticket.ApprovedAt,
		&ticket.RejectedAt,
		&ticket.RejectionReason,
		&audit,
		&ticket.Tags,
		&ticket.RelatedTickets,
		&ticket.PriorityScore,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if department != nil {
		dept := domain.Department(*department)
		ticket.AssignedToDepartment = &dept
	}
	if err := json.Unmarshal(messages, &ticket.Messages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sla, &ticket.SLA); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(audit, &ticket.AuditTrail); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}
