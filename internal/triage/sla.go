package triage

import (
	"math"
	"time"

	"github.com/spec-kit/triage-engine/internal/domain"
)

var slaTargets = map[domain.Severity]int{
	domain.SeverityCritical: 1,
	domain.SeverityHigh:     4,
	domain.SeverityMedium:   24,
	domain.SeverityLow:      72,
}

// SLAInfo is the computed countdown view of a ticket's response window.
type SLAInfo struct {
	TargetHours     int              `json:"target_hours"`
	BreachTime      time.Time        `json:"breach_time"`
	ElapsedHours    float64          `json:"elapsed_hours"`
	RemainingHours  float64          `json:"remaining_hours"`
	ProgressPercent float64          `json:"progress_percent"`
	Status          domain.SLAStatus `json:"status"`
}

// TargetHours returns the SLA window for a severity, defaulting to the
// medium target for unknown values.
func TargetHours(severity domain.Severity) int {
	if target, ok := slaTargets[severity]; ok {
		return target
	}
	return 24
}

// ComputeSLA derives the SLA countdown for a ticket anchored at createdAt.
// Elapsed and remaining hours are rounded to one decimal; progress caps at
// 100 even after a breach.
func ComputeSLA(severity domain.Severity, createdAt, now time.Time) SLAInfo {
	targetHours := TargetHours(severity)
	breachTime := createdAt.Add(time.Duration(targetHours) * time.Hour)

	elapsed := now.Sub(createdAt).Hours()
	remaining := breachTime.Sub(now).Hours()

	status := domain.SLAOnTime
	switch {
	case remaining < 0:
		status = domain.SLABreached
	case remaining < float64(targetHours)*0.25:
		status = domain.SLAAtRisk
	case remaining < float64(targetHours)*0.5:
		status = domain.SLAWarning
	}

	return SLAInfo{
		TargetHours:     targetHours,
		BreachTime:      breachTime,
		ElapsedHours:    roundTenth(elapsed),
		RemainingHours:  roundTenth(remaining),
		ProgressPercent: math.Min(elapsed/float64(targetHours)*100, 100),
		Status:          status,
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
