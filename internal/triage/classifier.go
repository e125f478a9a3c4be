package triage

import (
	"strings"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// RouteResult is the outcome of content classification. Confidence is a
// fixed heuristic (0.8 for a keyword hit, 0.5 for the fallback), not a
// probability.
type RouteResult struct {
	Department domain.Department `json:"department"`
	Severity   domain.Severity   `json:"severity"`
	Confidence float64           `json:"confidence"`
}

type routingRule struct {
	keywords   []string
	department domain.Department
	severity   domain.Severity
}

// Rule order is a tie-break contract: a ticket matching several rules
// routes to the first one. Billing before security before technical, etc.
var routingRules = []routingRule{
	{
		keywords:   []string{"payment", "billing", "invoice", "refund", "transaction", "subscription", "fee"},
		department: domain.DepartmentBilling,
		severity:   domain.SeverityHigh,
	},
	{
		keywords:   []string{"login", "password", "account", "access", "authentication", "security", "hack"},
		department: domain.DepartmentSecurity,
		severity:   domain.SeverityHigh,
	},
	{
		keywords:   []string{"bug", "error", "crash", "not working", "broken", "issue", "problem", "glitch"},
		department: domain.DepartmentTechnical,
		severity:   domain.SeverityMedium,
	},
	{
		keywords:   []string{"feature", "request", "enhancement", "new", "add", "suggestion"},
		department: domain.DepartmentProduct,
		severity:   domain.SeverityLow,
	},
	{
		keywords:   []string{"data", "export", "import", "backup", "sync", "integration"},
		department: domain.DepartmentTechnical,
		severity:   domain.SeverityMedium,
	},
	{
		keywords:   []string{"training", "how to", "tutorial", "guide", "documentation", "help"},
		department: domain.DepartmentSupport,
		severity:   domain.SeverityLow,
	},
	{
		keywords:   []string{"school", "student", "parent", "teacher", "class", "attendance", "grades"},
		department: domain.DepartmentEducation,
		severity:   domain.SeverityMedium,
	},
}

// Classify routes a ticket to a department by substring-matching its text
// against the ordered rule table. The first matching rule wins.
func Classify(t *domain.Ticket) RouteResult {
	text := strings.ToLower(t.Subject + " " + t.Description + " " + t.Category)

	for _, rule := range routingRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				return RouteResult{
					Department: rule.department,
					Severity:   rule.severity,
					Confidence: 0.8,
				}
			}
		}
	}

	severity := t.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	return RouteResult{
		Department: domain.DepartmentGeneral,
		Severity:   severity,
		Confidence: 0.5,
	}
}
