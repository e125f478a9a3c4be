package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/triage-engine/internal/clock"
	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/events"
	"github.com/spec-kit/triage-engine/internal/observability"
	"github.com/spec-kit/triage-engine/internal/repository"
	apperrors "github.com/spec-kit/triage-engine/pkg/errorutil"
)

type fakeTicketRepo struct {
	tickets map[string]domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]domain.Ticket{}}
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := ticket
	return &copied, nil
}

func (r *fakeTicketRepo) filtered(filter repository.TicketFilter) []domain.Ticket {
	out := make([]domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		if filter.Status != nil && ticket.Status != *filter.Status {
			continue
		}
		if filter.Severity != nil && ticket.Severity != *filter.Severity {
			continue
		}
		if filter.Department != nil && (ticket.AssignedToDepartment == nil || *ticket.AssignedToDepartment != *filter.Department) {
			continue
		}
		if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.Search != "" {
			text := strings.ToLower(ticket.Subject + " " + ticket.Description + " " + ticket.TicketNumber)
			if !strings.Contains(text, strings.ToLower(filter.Search)) {
				continue
			}
		}
		out = append(out, ticket)
	}
	return out
}

func (r *fakeTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	out := r.filtered(filter)
	desc := !strings.EqualFold(filter.SortOrder, "asc")
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Ticket{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *fakeTicketRepo) Count(_ context.Context, filter repository.TicketFilter) (int, error) {
	return len(r.filtered(filter)), nil
}

func (r *fakeTicketRepo) AssignDepartment(_ context.Context, id string, dept domain.Department, severityHint domain.Severity) (bool, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return false, nil
	}
	if ticket.AssignedToDepartment != nil {
		return false, nil
	}
	ticket.AssignedToDepartment = &dept
	if ticket.Severity == "" {
		ticket.Severity = severityHint
	}
	r.tickets[id] = ticket
	return true, nil
}

func (r *fakeTicketRepo) Aggregate(_ context.Context, since time.Time) (*repository.StatsAggregate, error) {
	agg := &repository.StatsAggregate{
		ByStatus:     map[string]int{},
		BySeverity:   map[string]int{},
		ByDepartment: map[string]int{},
		BySource:     map[string]int{},
	}
	var resolutionSum float64
	var resolutionCount int
	for _, ticket := range r.tickets {
		if ticket.CreatedAt.Before(since) {
			continue
		}
		agg.Total++
		agg.ByStatus[string(ticket.Status)]++
		agg.BySeverity[string(ticket.Severity)]++
		agg.BySource[string(ticket.SourceDashboard)]++
		if ticket.AssignedToDepartment != nil {
			agg.ByDepartment[string(*ticket.AssignedToDepartment)]++
		}
		// Mirrors the repository totals query: only the literal open and
		// resolved statuses count toward those buckets.
		switch ticket.Status {
		case domain.TicketStatusOpen:
			agg.Open++
		case domain.TicketStatusResolved:
			agg.Resolved++
			if ticket.ResolvedAt != nil {
				resolutionSum += ticket.ResolvedAt.Sub(ticket.CreatedAt).Hours()
				resolutionCount++
			}
		}
		if ticket.SLA.Status == domain.SLABreached {
			agg.SLABreaches++
		}
	}
	if resolutionCount > 0 {
		agg.AvgResolutionHours = resolutionSum / float64(resolutionCount)
	}
	return agg, nil
}

type fakeNumbers struct {
	seq int
}

func (f *fakeNumbers) Next(_ context.Context, now time.Time) (string, error) {
	f.seq++
	return fmt.Sprintf("TKT-%d-%04d", now.Year(), f.seq), nil
}

type eventRecorder struct {
	events []events.Event
}

func (r *eventRecorder) record(_ context.Context, event events.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, event := range r.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func newTestService(t *testing.T, now time.Time) (*TicketService, *fakeTicketRepo, *clock.FakeClock, *eventRecorder) {
	t.Helper()
	repo := newFakeTicketRepo()
	fakeClock := clock.NewFakeClock(now)
	recorder := &eventRecorder{}
	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range events.AllTypes() {
		dispatcher.Subscribe(eventType, recorder.record)
	}
	svc := NewTicketService(TicketDependencies{
		TicketRepo: repo,
		Numbers:    &fakeNumbers{},
		Dispatcher: dispatcher,
		Clock:      fakeClock,
	})
	return svc, repo, fakeClock, recorder
}

func seedTicket(t *testing.T, repo *fakeTicketRepo, mutate func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{
		TicketNumber:    "TKT-2025-9000",
		TenantID:        "default",
		CreatedBy:       "user-1",
		Type:            domain.TypeGeneralInquiry,
		Severity:        domain.SeverityMedium,
		SourceDashboard: domain.SourceStudent,
		Status:          domain.TicketStatusOpen,
		Subject:         "Cannot log in",
		Description:     "login fails with an error",
		SLA: domain.SLASnapshot{
			TargetHours: 24,
			BreachTime:  now.Add(24 * time.Hour),
			Status:      domain.SLAOnTime,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mutate != nil {
		mutate(ticket)
	}
	require.NoError(t, repo.Create(context.Background(), ticket))
	return ticket
}

func TestCreateTicketEndToEnd(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, recorder := newTestService(t, now)

	detail, err := svc.CreateTicket(context.Background(), CreateTicketInput{
		Subject:         "Refund not processed",
		Description:     "my payment failed",
		SourceDashboard: "student",
		CreatedBy:       "user-42",
	})
	require.NoError(t, err)

	assert.Equal(t, "TKT-2025-0001", detail.TicketNumber)
	assert.Equal(t, domain.SeverityMedium, detail.Severity)
	assert.Equal(t, domain.TicketStatusOpen, detail.Status)
	require.NotNil(t, detail.AssignedToDepartment)
	assert.Equal(t, domain.DepartmentBilling, *detail.AssignedToDepartment)
	assert.Equal(t, 24, detail.SLA.TargetHours)
	assert.Equal(t, domain.SLAOnTime, detail.SLA.Status)
	assert.Greater(t, detail.PriorityScore, 0)
	assert.False(t, detail.CanAutoRoute)
	assert.NotEmpty(t, detail.Suggestions)

	created := recorder.ofType(events.EventTicketCreated)
	require.Len(t, created, 1)
	assert.Equal(t, detail.ID, created[0].TicketID)
	assert.Empty(t, recorder.ofType(events.EventTicketAlert))
}

func TestCreateTicketDefaultsUnknownEnums(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, _ := newTestService(t, now)

	detail, err := svc.CreateTicket(context.Background(), CreateTicketInput{
		Subject:         "Something odd",
		Severity:        "catastrophic",
		SourceDashboard: "fax",
		Type:            "mystery",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SeverityMedium, detail.Severity)
	assert.Equal(t, domain.SourceStudent, detail.SourceDashboard)
	assert.Equal(t, domain.TypeGeneralInquiry, detail.Type)
	assert.Equal(t, "default", detail.TenantID)
}

func TestCreateTicketCriticalEmitsAlert(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, recorder := newTestService(t, now)

	detail, err := svc.CreateTicket(context.Background(), CreateTicketInput{
		Subject:  "Data breach reported",
		Severity: "critical",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, detail.SLA.TargetHours)
	alerts := recorder.ofType(events.EventTicketAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, detail.ID, alerts[0].TicketID)
}

func TestRouteTicketIsIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, _, recorder := newTestService(t, now)
	ticket := seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.Subject = "Refund request"
		ticket.Description = "please process my refund"
		ticket.AssignedToDepartment = nil
	})

	first, err := svc.RouteTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, domain.DepartmentBilling, first.Department)
	assert.InDelta(t, 0.8, first.Confidence, 0.0001)

	second, err := svc.RouteTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.NotEmpty(t, second.Message)

	stored, err := repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AssignedToDepartment)
	assert.Equal(t, domain.DepartmentBilling, *stored.AssignedToDepartment)
	assert.Len(t, recorder.ofType(events.EventTicketRouted), 1)
}

func TestRouteTicketNotFound(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, _, _, _ := newTestService(t, now)

	_, err := svc.RouteTicket(context.Background(), uuid.NewString())
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestUpdateTicketSeverityChangeReanchorsSLA(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, fakeClock, _ := newTestService(t, now)
	ticket := seedTicket(t, repo, nil)

	fakeClock.Advance(6 * time.Hour)
	severity := "critical"
	detail, err := svc.UpdateTicket(context.Background(), ticket.ID, UpdateTicketPatch{Severity: &severity}, Viewer{ID: "agent-1", Staff: true})
	require.NoError(t, err)

	stored, err := repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityCritical, stored.Severity)
	assert.Equal(t, 1, stored.SLA.TargetHours)
	// The breach clock restarts from the update instant, not from creation.
	assert.Equal(t, now.Add(6*time.Hour).Add(1*time.Hour), stored.SLA.BreachTime)
	assert.Equal(t, domain.SeverityCritical, detail.Severity)
}

func TestUpdateTicketRejectsUnknownEnum(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newTestService(t, now)
	ticket := seedTicket(t, repo, nil)

	agent := Viewer{ID: "agent-1", Staff: true}
	errBefore := testutil.ToFloat64(observability.TicketOperations.WithLabelValues("update", "error"))

	bogus := "vaporized"
	_, err := svc.UpdateTicket(context.Background(), ticket.ID, UpdateTicketPatch{Status: &bogus}, agent)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	severity := "weapons-grade"
	_, err = svc.UpdateTicket(context.Background(), ticket.ID, UpdateTicketPatch{Severity: &severity}, agent)
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_FAILED", apperrors.ToDomainError(err).Code)

	errAfter := testutil.ToFloat64(observability.TicketOperations.WithLabelValues("update", "error"))
	assert.Equal(t, errBefore+2, errAfter)
}

func TestUpdateTicketResolveSetsFieldsAndEmits(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, fakeClock, recorder := newTestService(t, now)
	ticket := seedTicket(t, repo, nil)

	fakeClock.Advance(2 * time.Hour)
	status := "resolved"
	notes := "password reset issued"
	detail, err := svc.UpdateTicket(context.Background(), ticket.ID, UpdateTicketPatch{
		Status:          &status,
		ResolutionNotes: &notes,
	}, Viewer{ID: "agent-7", Staff: true})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusResolved, detail.Status)
	require.NotNil(t, detail.ResolvedAt)
	assert.Equal(t, now.Add(2*time.Hour), *detail.ResolvedAt)
	require.NotNil(t, detail.ResolvedBy)
	assert.Equal(t, "agent-7", *detail.ResolvedBy)
	assert.Equal(t, notes, detail.Resolution)

	resolved := recorder.ofType(events.EventTicketResolved)
	require.Len(t, resolved, 1)
	assert.Len(t, recorder.ofType(events.EventTicketUpdated), 1)

	require.Len(t, detail.AuditTrail, 1)
	assert.Equal(t, "agent-7", detail.AuditTrail[0].PerformedBy)
	assert.Contains(t, detail.AuditTrail[0].Changes, "status")
}

func TestListTicketsPrioritySortSpansPages(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newTestService(t, now)

	severities := []domain.Severity{domain.SeverityLow, domain.SeverityCritical, domain.SeverityMedium}
	for i, severity := range severities {
		sev := severity
		offset := time.Duration(i) * time.Minute
		seedTicket(t, repo, func(ticket *domain.Ticket) {
			ticket.TicketNumber = fmt.Sprintf("TKT-2025-%04d", i+1)
			ticket.Severity = sev
			ticket.CreatedAt = now.Add(offset)
			ticket.UpdatedAt = now.Add(offset)
		})
	}

	result, err := svc.ListTickets(context.Background(), ListFilter{SortBy: "priority", SortOrder: "desc", Limit: 2})
	require.NoError(t, err)
	require.Len(t, result.Tickets, 2)
	assert.Equal(t, domain.SeverityCritical, result.Tickets[0].Severity)
	assert.Equal(t, domain.SeverityMedium, result.Tickets[1].Severity)
	assert.Equal(t, 3, result.Pagination.Total)
	assert.Equal(t, 2, result.Pagination.Pages)

	page2, err := svc.ListTickets(context.Background(), ListFilter{SortBy: "priority", SortOrder: "desc", Limit: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, page2.Tickets, 1)
	assert.Equal(t, domain.SeverityLow, page2.Tickets[0].Severity)
}

func TestListTicketsAllMeansNoConstraint(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newTestService(t, now)
	seedTicket(t, repo, nil)
	seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.TicketNumber = "TKT-2025-9001"
		ticket.Status = domain.TicketStatusResolved
	})

	result, err := svc.ListTickets(context.Background(), ListFilter{Status: "all"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pagination.Total)

	open, err := svc.ListTickets(context.Background(), ListFilter{Status: "open"})
	require.NoError(t, err)
	assert.Equal(t, 1, open.Pagination.Total)
}

func TestGetTicketByIDEnrichesView(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, fakeClock, _ := newTestService(t, now)
	ticket := seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.AssignedToDepartment = nil
	})

	fakeClock.Advance(13 * time.Hour)
	detail, err := svc.GetTicketByID(context.Background(), ticket.ID, Viewer{ID: "user-1"})
	require.NoError(t, err)

	assert.True(t, detail.CanAutoRoute)
	assert.Equal(t, domain.SLAWarning, detail.SLA.Status)
	assert.InDelta(t, 13.0, detail.SLA.ElapsedHours, 0.01)
	assert.NotEmpty(t, detail.Suggestions)
	assert.LessOrEqual(t, len(detail.Suggestions), 5)
}

func TestGetTicketStatsResolutionRate(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newTestService(t, now)

	for i := 0; i < 4; i++ {
		idx := i
		seedTicket(t, repo, func(ticket *domain.Ticket) {
			ticket.TicketNumber = fmt.Sprintf("TKT-2025-%04d", idx+1)
			if idx < 3 {
				ticket.Status = domain.TicketStatusResolved
				resolvedAt := ticket.CreatedAt.Add(5 * time.Hour)
				ticket.ResolvedAt = &resolvedAt
			}
		})
	}

	stats, err := svc.GetTicketStats(context.Background(), "month")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Resolved)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 75, stats.ResolutionRate)
	assert.InDelta(t, 5.0, stats.AvgResolutionTimeHours, 0.01)
}

func TestGetTicketStatsWindowExcludesOldTickets(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newTestService(t, now)
	seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.CreatedAt = now.Add(-2 * time.Hour)
	})
	seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.TicketNumber = "TKT-2025-9001"
		ticket.CreatedAt = now.AddDate(0, 0, -3)
	})

	stats, err := svc.GetTicketStats(context.Background(), "day")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestGetTicketByIDHidesInternalNotesFromNonStaff(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newTestService(t, now)
	ticket := seedTicket(t, repo, nil)

	staff := Viewer{ID: "csr-1", Staff: true}
	_, err := svc.AddMessage(context.Background(), ticket.ID, MessageInput{Body: "checked the billing backend", Internal: true}, staff)
	require.NoError(t, err)
	_, err = svc.AddMessage(context.Background(), ticket.ID, MessageInput{Body: "we are looking into it"}, staff)
	require.NoError(t, err)

	asStaff, err := svc.GetTicketByID(context.Background(), ticket.ID, staff)
	require.NoError(t, err)
	require.Len(t, asStaff.Messages, 2)
	assert.True(t, asStaff.Messages[0].Internal)

	asRequester, err := svc.GetTicketByID(context.Background(), ticket.ID, Viewer{ID: "user-1"})
	require.NoError(t, err)
	require.Len(t, asRequester.Messages, 1)
	assert.Equal(t, "we are looking into it", asRequester.Messages[0].Body)
	assert.False(t, asRequester.Messages[0].Internal)
}

func TestAddMessageNonStaffCannotMarkInternal(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newTestService(t, now)
	ticket := seedTicket(t, repo, nil)

	msg, err := svc.AddMessage(context.Background(), ticket.ID, MessageInput{Body: "secret?", Internal: true}, Viewer{ID: "user-1"})
	require.NoError(t, err)
	assert.False(t, msg.Internal)

	stored, err := repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
	assert.False(t, stored.Messages[0].Internal)
}

func TestListTicketsCreatedFromFilter(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	svc, repo, _, _ := newTestService(t, now)
	seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.CreatedAt = now.AddDate(0, 0, -10)
	})
	seedTicket(t, repo, func(ticket *domain.Ticket) {
		ticket.TicketNumber = "TKT-2025-9001"
		ticket.CreatedAt = now.Add(-1 * time.Hour)
	})

	cutoff := now.AddDate(0, 0, -1)
	result, err := svc.ListTickets(context.Background(), ListFilter{CreatedFrom: &cutoff})
	require.NoError(t, err)
	require.Len(t, result.Tickets, 1)
	assert.Equal(t, "TKT-2025-9001", result.Tickets[0].TicketNumber)
	assert.Equal(t, 1, result.Pagination.Total)
}

func TestAddMessageAppendsToThread(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	svc, repo, fakeClock, _ := newTestService(t, now)
	ticket := seedTicket(t, repo, nil)

	fakeClock.Advance(30 * time.Minute)
	msg, err := svc.AddMessage(context.Background(), ticket.ID, MessageInput{Body: "any update?"}, Viewer{ID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "any update?", msg.Body)
	assert.Equal(t, "user-1", msg.Sender)

	stored, err := repo.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
	assert.Equal(t, msg.ID, stored.Messages[0].ID)
	assert.Equal(t, now.Add(30*time.Minute), stored.UpdatedAt)
}
