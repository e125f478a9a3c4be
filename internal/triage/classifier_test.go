package triage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/triage-engine/internal/domain"
	"github.com/spec-kit/triage-engine/internal/triage"
)

func TestClassifyRuleTable(t *testing.T) {
	tests := map[string]struct {
		subject     string
		description string
		department  domain.Department
		severity    domain.Severity
	}{
		"billing keywords":   {"Refund request", "please process my refund", domain.DepartmentBilling, domain.SeverityHigh},
		"security keywords":  {"Cannot login", "password does not work", domain.DepartmentSecurity, domain.SeverityHigh},
		"technical keywords": {"App crash", "the page is broken", domain.DepartmentTechnical, domain.SeverityMedium},
		"product keywords":   {"Enhancement idea", "a suggestion for the roadmap", domain.DepartmentProduct, domain.SeverityLow},
		"data ops keywords":  {"CSV export", "export stopped last sync", domain.DepartmentTechnical, domain.SeverityMedium},
		"support keywords":   {"Need a tutorial", "where is the documentation", domain.DepartmentSupport, domain.SeverityLow},
		"education keywords": {"Attendance report", "grades are wrong for my class", domain.DepartmentEducation, domain.SeverityMedium},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			result := triage.Classify(&domain.Ticket{Subject: tc.subject, Description: tc.description})
			assert.Equal(t, tc.department, result.Department)
			assert.Equal(t, tc.severity, result.Severity)
			assert.Equal(t, 0.8, result.Confidence)
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// "refund" (billing, rule 1) and "bug" (technical, rule 3) both match;
	// the earlier rule must win.
	result := triage.Classify(&domain.Ticket{
		Subject:     "Refund not processed",
		Description: "there is a bug in checkout",
	})
	assert.Equal(t, domain.DepartmentBilling, result.Department)
}

func TestClassifyMatchesCategoryText(t *testing.T) {
	result := triage.Classify(&domain.Ticket{
		Subject:     "Question",
		Description: "something is off",
		Category:    "Invoice questions",
	})
	assert.Equal(t, domain.DepartmentBilling, result.Department)
}

func TestClassifyFallback(t *testing.T) {
	result := triage.Classify(&domain.Ticket{
		Subject:     "hello",
		Description: "just checking in",
		Severity:    domain.SeverityHigh,
	})
	assert.Equal(t, domain.DepartmentGeneral, result.Department)
	assert.Equal(t, domain.SeverityHigh, result.Severity)
	assert.Equal(t, 0.5, result.Confidence)

	noSeverity := triage.Classify(&domain.Ticket{Subject: "hello", Description: "checking in again"})
	assert.Equal(t, domain.SeverityMedium, noSeverity.Severity)
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	result := triage.Classify(&domain.Ticket{Subject: "PAYMENT FAILED", Description: ""})
	assert.Equal(t, domain.DepartmentBilling, result.Department)
}
