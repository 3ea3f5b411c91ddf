package models

import "time"

// DraftStatus represents the approval state of a suggested reply
type DraftStatus string

const (
	DraftPendingApproval DraftStatus = "PENDING_APPROVAL"
	DraftApproved        DraftStatus = "APPROVED"
	DraftRejected        DraftStatus = "REJECTED"
	DraftError           DraftStatus = "ERROR"
)

// Draft is a model-suggested reply for one incoming message, waiting for
// human approval before it may be sent back through the provider.
type Draft struct {
	ID             string      `json:"id"`
	DialogID       string      `json:"dialog_id"`
	OwnerID        string      `json:"owner_id"`
	MessageID      string      `json:"message_id"`
	ModelName      string      `json:"model_name"`
	SuggestedReply string      `json:"suggested_reply"`
	Status         DraftStatus `json:"status"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}
