package triage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/triage"
)

func baseTicket(severity domain.Severity, createdAt time.Time) *domain.Ticket {
	return &domain.Ticket{
		Severity:        severity,
		SourceDashboard: domain.SourceStudent,
		CreatedAt:       createdAt,
	}
}

func TestScoreSeverityMonotonicity(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	scores := map[domain.Severity]int{}
	for _, severity := range []domain.Severity{
		domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical,
	} {
		scores[severity] = triage.Score(baseTicket(severity, now), now)
	}

	assert.Greater(t, scores[domain.SeverityCritical], scores[domain.SeverityHigh])
	assert.Greater(t, scores[domain.SeverityHigh], scores[domain.SeverityMedium])
	assert.Greater(t, scores[domain.SeverityMedium], scores[domain.SeverityLow])
}

func TestScoreComponents(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	dept := domain.DepartmentBilling

	tests := map[string]struct {
		ticket   *domain.Ticket
		expected int
	}{
		"fresh medium student": {
			ticket:   baseTicket(domain.SeverityMedium, now),
			expected: 25 + 0 + 5,
		},
		"age bonus caps at 50": {
			// 100h old: age bonus would be 200 uncapped.
			ticket:   baseTicket(domain.SeverityLow, now.Add(-100*time.Hour)),
			expected: 10 + 50 + 5,
		},
		"admin source weight": {
			ticket: &domain.Ticket{
				Severity:        domain.SeverityMedium,
				SourceDashboard: domain.SourceAdmin,
				CreatedAt:       now,
			},
			expected: 25 + 30,
		},
		"unknown severity and source default to 10 each": {
			ticket: &domain.Ticket{
				Severity:        domain.Severity("unheard_of"),
				SourceDashboard: domain.SourceDashboard("kiosk"),
				CreatedAt:       now,
			},
			expected: 10 + 10,
		},
		"department assignment subtracts": {
			ticket: &domain.Ticket{
				Severity:             domain.SeverityMedium,
				SourceDashboard:      domain.SourceStudent,
				AssignedToDepartment: &dept,
				CreatedAt:            now,
			},
			expected: 25 + 5 - 10,
		},
		"escalation adds 30": {
			ticket: &domain.Ticket{
				Severity:        domain.SeverityMedium,
				SourceDashboard: domain.SourceStudent,
				Escalated:       true,
				CreatedAt:       now,
			},
			expected: 25 + 5 + 30,
		},
		"breach within 2h adds 40": {
			ticket: &domain.Ticket{
				Severity:        domain.SeverityMedium,
				SourceDashboard: domain.SourceStudent,
				CreatedAt:       now,
				SLA:             domain.SLASnapshot{BreachTime: now.Add(90 * time.Minute)},
			},
			expected: 25 + 5 + 40,
		},
		"breach within 4h adds 20": {
			ticket: &domain.Ticket{
				Severity:        domain.SeverityMedium,
				SourceDashboard: domain.SourceStudent,
				CreatedAt:       now,
				SLA:             domain.SLASnapshot{BreachTime: now.Add(3 * time.Hour)},
			},
			expected: 25 + 5 + 20,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, triage.Score(tc.ticket, now))
		})
	}
}

func TestScoreCanGoNegativeRelativeToBase(t *testing.T) {
	// The score is never clamped; department assignment genuinely lowers it.
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	dept := domain.DepartmentGeneral

	unassigned := baseTicket(domain.SeverityLow, now)
	assigned := baseTicket(domain.SeverityLow, now)
	assigned.AssignedToDepartment = &dept

	assert.Equal(t, triage.Score(unassigned, now)-10, triage.Score(assigned, now))
}
