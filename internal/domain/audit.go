package domain

import "time"

// AuditEntry is an append-only record of a mutation. Changes holds the raw
// patch that was applied.
type AuditEntry struct {
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by"`
	PerformedAt time.Time      `json:"performed_at"`
	Changes     map[string]any `json:"changes,omitempty"`
}
