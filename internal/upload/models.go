package upload

import "time"

// ReportStatus tracks a stored report's lifecycle.
type ReportStatus string

const (
	StatusPending  ReportStatus = "PENDING"
	StatusUploaded ReportStatus = "UPLOADED"
	StatusRejected ReportStatus = "REJECTED"
)

// Report is the metadata record for one task report file. The declared name
// is kept for audit; the object name is what storage actually uses.
type Report struct {
	ID           string       `json:"id"`
	TaskID       string       `json:"task_id"`
	UserID       string       `json:"user_id"`
	DeclaredName string       `json:"declared_name"`
	ObjectName   string       `json:"-"`
	SizeBytes    int64        `json:"size_bytes"`
	ContentType  string       `json:"content_type"`
	Status       ReportStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}
