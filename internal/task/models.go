package task

import (
	"time"

	dErrors "taskdesk/pkg/domain-errors"
)

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority orders tasks for display; it has no scheduling semantics.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

// Task is the aggregate the defense pipeline exists to protect. Field values
// are sanitized before they reach this struct.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	CreatorID   string     `json:"creator_id"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate enforces the task field invariants.
func (t *Task) Validate() error {
	if t.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len([]rune(t.Title)) > MaxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "title must be 200 characters or less")
	}
	if len([]rune(t.Description)) > MaxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, "description must be 2000 characters or less")
	}
	if !t.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "status must be one of [PENDING IN_PROGRESS DONE]")
	}
	if !t.Priority.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "priority must be one of [LOW MEDIUM HIGH]")
	}
	return nil
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status     Status
	Priority   Priority
	AssigneeID string
	CreatorID  string
}
