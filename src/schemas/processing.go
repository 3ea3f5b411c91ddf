package schemas

import "time"

// SubmitDialogsRequest queues the listed dialogs for background processing.
type SubmitDialogsRequest struct {
	DialogIDs []string `json:"dialog_ids" binding:"required,min=1"`
}

// SubmitDialogsResponse reports the task IDs created for the submission.
type SubmitDialogsResponse struct {
	Queued  int      `json:"queued"`
	TaskIDs []string `json:"task_ids"`
}

// ClearQueueResponse reports how many pending tasks were removed.
type ClearQueueResponse struct {
	Removed int `json:"removed"`
}

// DialogResponse is one provider conversation visible to the caller.
type DialogResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	UnreadCount int       `json:"unread_count"`
	LastMessage time.Time `json:"last_message"`
}

// DraftDecisionResponse reports the outcome of approving or rejecting a
// draft. MessageID and SentAt are set only on approval.
type DraftDecisionResponse struct {
	DraftID   string     `json:"draft_id"`
	Status    string     `json:"status"`
	MessageID string     `json:"message_id,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// DraftResponse is one suggested reply awaiting approval.
type DraftResponse struct {
	ID             string     `json:"id"`
	DialogID       string     `json:"dialog_id"`
	MessageID      string     `json:"message_id"`
	ModelName      string     `json:"model_name"`
	SuggestedReply string     `json:"suggested_reply"`
	Status         string     `json:"status"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}
