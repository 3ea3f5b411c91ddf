// Package processor turns one dialog into a suggested reply draft. It is the
// unit of work the task queue executes: fetch recent messages, ask the model
// for a reply to the last incoming one, store the draft for approval.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dialog-processor/src/llm"
	"dialog-processor/src/models"
	"dialog-processor/src/telegram"
)

const (
	messageFetchLimit = 100
	contextMessages   = 10
)

// Result summarizes one processed dialog.
type Result struct {
	Message string
	Drafts  int
}

// Processor executes the work for one queued task. Implementations must be
// safe for concurrent use across distinct resource IDs; the queue guarantees
// no two calls run concurrently for the same ResourceID.
type Processor interface {
	Process(ctx context.Context, task *models.QueueTask) (Result, error)
}

// DraftStore persists suggested replies. Implemented by
// repository.DraftRepository.
type DraftStore interface {
	InsertDraft(ctx context.Context, d *models.Draft) error
}

// ClientSource resolves the provider client for the session doing the work.
type ClientSource interface {
	Client(sessionID string) (telegram.Client, error)
}

// DialogProcessor is the production Processor: provider in, model in the
// middle, draft repository out.
type DialogProcessor struct {
	clients ClientSource
	llm     llm.Client
	drafts  DraftStore
	model   string
}

// NewDialogProcessor wires the processor to its collaborators.
func NewDialogProcessor(clients ClientSource, llmClient llm.Client, drafts DraftStore, model string) *DialogProcessor {
	return &DialogProcessor{clients: clients, llm: llmClient, drafts: drafts, model: model}
}

// Process fetches the dialog's recent messages, drafts a reply to the last
// incoming message and stores it pending approval. The task's SessionID
// selects the provider client that does the fetching.
func (p *DialogProcessor) Process(ctx context.Context, task *models.QueueTask) (Result, error) {
	resourceID := task.ResourceID
	client, err := p.clients.Client(task.SessionID)
	if err != nil {
		return Result{}, models.NewTaskProcessingError(resourceID, "provider client unavailable", err)
	}

	messages, err := client.FetchMessages(ctx, resourceID, messageFetchLimit)
	if err != nil {
		return Result{}, models.NewTaskProcessingError(resourceID, "failed to fetch messages", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, models.NewTaskProcessingError(resourceID, "cancelled", err)
	}

	last := lastIncoming(messages)
	if last == nil {
		slog.Info("Dialog has no incoming message to answer", "dialog_id", resourceID)
		return Result{Message: "no incoming messages"}, nil
	}

	reply, err := p.llm.Chat(ctx, llm.Request{
		Model:    p.model,
		Messages: buildContext(messages),
	})
	if err != nil {
		return Result{}, models.NewTaskProcessingError(resourceID, "model request failed", err)
	}
	if reply.Text == "" {
		return Result{}, models.NewTaskProcessingError(resourceID, "model returned an empty reply", nil)
	}

	draft := &models.Draft{
		DialogID:       resourceID,
		OwnerID:        task.OwnerID,
		MessageID:      last.ID,
		ModelName:      p.model,
		SuggestedReply: reply.Text,
		Status:         models.DraftPendingApproval,
		CreatedAt:      time.Now(),
	}
	if err := p.drafts.InsertDraft(ctx, draft); err != nil {
		return Result{}, models.NewTaskProcessingError(resourceID, "failed to store draft", err)
	}

	slog.Info("Drafted reply for dialog",
		"dialog_id", resourceID, "message_id", last.ID, "model_duration", reply.Duration)
	return Result{
		Message: fmt.Sprintf("drafted reply to message %s", last.ID),
		Drafts:  1,
	}, nil
}

// lastIncoming returns the newest message not sent by the owner, or nil.
func lastIncoming(messages []telegram.Message) *telegram.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if !messages[i].Outgoing {
			return &messages[i]
		}
	}
	return nil
}

// buildContext maps the tail of the conversation onto model roles. Outgoing
// messages become the assistant's prior turns.
func buildContext(messages []telegram.Message) []llm.Message {
	start := 0
	if len(messages) > contextMessages {
		start = len(messages) - contextMessages
	}
	out := make([]llm.Message, 0, len(messages)-start)
	for _, m := range messages[start:] {
		role := "user"
		name := m.SenderName
		if m.Outgoing {
			role = "assistant"
			name = ""
		}
		out = append(out, llm.Message{Role: role, Content: m.Text, Name: name})
	}
	return out
}
