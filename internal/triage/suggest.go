package triage

import (
	"strings"

	"github.com/google/uuid"

	"github.com/spec-kit/triage-engine/internal/domain"
)

const maxSuggestions = 5

// Suggestion is a candidate resolution hint.
type Suggestion struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type resolutionPattern struct {
	keywords    []string
	suggestions []string
}

// Unlike routing rules, patterns are not mutually exclusive: every matching
// pattern contributes all of its suggestions.
var resolutionPatterns = []resolutionPattern{
	{
		keywords: []string{"password", "forgot", "reset"},
		suggestions: []string{
			`Guide user to use "Forgot Password" feature`,
			"Verify user identity before reset",
			"Check if account is locked",
			"Review account security settings",
		},
	},
	{
		keywords: []string{"payment", "transaction", "failed"},
		suggestions: []string{
			"Check payment gateway status",
			"Verify card/bank details",
			"Check transaction logs",
			"Contact payment provider if needed",
			"Offer alternative payment method",
		},
	},
	{
		keywords: []string{"login", "access", "cannot"},
		suggestions: []string{
			"Check account status (active/suspended)",
			"Verify credentials are correct",
			"Check for IP restrictions",
			"Review session timeout settings",
			"Check browser cache/cookies",
		},
	},
	{
		keywords: []string{"slow", "lag", "performance"},
		suggestions: []string{
			"Check server load and performance",
			"Review recent deployments",
			"Analyze user location/network",
			"Check database query performance",
			"Review CDN cache status",
		},
	},
	{
		keywords: []string{"data", "missing", "lost"},
		suggestions: []string{
			"Check backup systems",
			"Review audit logs",
			"Verify user permissions",
			"Check data sync status",
			"Review database integrity",
		},
	},
	{
		keywords: []string{"feature", "not available", "missing"},
		suggestions: []string{
			"Check subscription plan limitations",
			"Verify feature availability for user role",
			"Review feature flags",
			"Check if feature is in beta/testing",
		},
	},
}

var genericSuggestions = []string{
	"Review ticket details and gather more information",
	"Check similar past tickets for solutions",
	"Verify user permissions and access",
	"Review system logs for related errors",
	"Contact user for additional details if needed",
}

var departmentSuggestions = map[domain.Department]string{
	domain.DepartmentBilling:   "Check payment history and subscription status",
	domain.DepartmentTechnical: "Review error logs and system status",
	domain.DepartmentSecurity:  "Review security logs and user activity",
}

// Suggest produces a ranked list of resolution hints for a ticket, at most
// five entries and never empty.
func Suggest(t *domain.Ticket) []Suggestion {
	text := strings.ToLower(t.Subject + t.Description)

	var texts []string
	for _, pattern := range resolutionPatterns {
		if anyKeyword(text, pattern.keywords) {
			texts = append(texts, pattern.suggestions...)
		}
	}

	if len(texts) == 0 {
		texts = append(texts, genericSuggestions...)
	}

	if extra, ok := departmentSuggestions[Classify(t).Department]; ok {
		texts = append(texts, extra)
	}

	if len(texts) > maxSuggestions {
		texts = texts[:maxSuggestions]
	}

	suggestions := make([]Suggestion, 0, len(texts))
	for _, text := range texts {
		suggestions = append(suggestions, Suggestion{
			ID:         uuid.NewString(),
			Text:       text,
			Confidence: 0.7,
			Source:     "rule_based",
		})
	}
	return suggestions
}

func anyKeyword(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
