package models

import "time"

// TaskStatus represents the state of a queued dialog-processing task
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// QueueTask is one unit of background work against a single dialog.
// ResourceID is the unit of mutual exclusion: at most one task per
// ResourceID may be PROCESSING at any time.
type QueueTask struct {
	ID          string     `json:"id"`
	ResourceID  string     `json:"resource_id"`
	SessionID   string     `json:"session_id,omitempty"`
	OwnerID     string     `json:"owner_id,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	LastError   string     `json:"last_error,omitempty"`
}
