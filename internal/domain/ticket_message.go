package domain

import "time"

// TicketMessage captures one entry in a ticket's conversation thread.
// Internal messages are visible to staff dashboards only.
type TicketMessage struct {
	ID          string                `json:"id"`
	Sender      string                `json:"sender"`
	Body        string                `json:"body"`
	Internal    bool                  `json:"internal"`
	Attachments []AttachmentReference `json:"attachments,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// AttachmentReference stores metadata for a message attachment. The bytes
// themselves live in external storage.
type AttachmentReference struct {
	StorageKey string `json:"storage_key"`
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}
