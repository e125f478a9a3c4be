package triage

import (
	"math"
	"time"

	"github.com/spec-kit/triage-engine/internal/domain"
)

var severityWeights = map[domain.Severity]float64{
	domain.SeverityCritical: 100,
	domain.SeverityHigh:     50,
	domain.SeverityMedium:   25,
	domain.SeverityLow:      10,
}

var sourceWeights = map[domain.SourceDashboard]float64{
	domain.SourceAdmin:       30,
	domain.SourceSchoolAdmin: 25,
	domain.SourceCSR:         20,
	domain.SourceTeacher:     15,
	domain.SourceParent:      10,
	domain.SourceStudent:     5,
}

// Score computes the urgency score for a ticket at the given instant. The
// result is unbounded in both directions and is never persisted as ground
// truth; every read recomputes it from the ticket's current fields.
func Score(t *domain.Ticket, now time.Time) int {
	score := 0.0

	if w, ok := severityWeights[t.Severity]; ok {
		score += w
	} else {
		score += 10
	}

	// Older tickets climb, capped so very old ones don't dominate.
	ageHours := now.Sub(t.CreatedAt).Hours()
	score += math.Min(ageHours*2, 50)

	if w, ok := sourceWeights[t.SourceDashboard]; ok {
		score += w
	} else {
		score += 10
	}

	// Already in a department's queue: slightly less urgent.
	if t.AssignedToDepartment != nil {
		score -= 10
	}

	if t.Escalated {
		score += 30
	}

	if !t.SLA.BreachTime.IsZero() {
		remaining := t.SLA.BreachTime.Sub(now).Hours()
		if remaining < 2 {
			score += 40
		} else if remaining < 4 {
			score += 20
		}
	}

	return int(math.Round(score))
}
