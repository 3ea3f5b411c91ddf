package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"dialog-processor/src/middleware"
	"dialog-processor/src/models"
	"dialog-processor/src/queue"
	"dialog-processor/src/schemas"
	"dialog-processor/src/telegram"
	"dialog-processor/src/utils"

	"github.com/gin-gonic/gin"
)

// DraftStore is the slice of the draft repository the endpoints use.
type DraftStore interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*models.Draft, error)
	GetByID(ctx context.Context, id string) (*models.Draft, error)
	UpdateStatus(ctx context.Context, id string, status models.DraftStatus) error
}

// ClientSource resolves the provider client bound to a session.
type ClientSource interface {
	Client(sessionID string) (telegram.Client, error)
}

type ProcessingController struct {
	Queue   *queue.TaskQueue
	Drafts  DraftStore
	Clients ClientSource
}

func NewProcessingController(q *queue.TaskQueue, drafts DraftStore, clients ClientSource) *ProcessingController {
	return &ProcessingController{
		Queue:   q,
		Drafts:  drafts,
		Clients: clients,
	}
}

// @Summary Queue dialogs for processing
// @Description Enqueues one task per dialog ID. Tasks for the same dialog never run concurrently.
// @Tags processing
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param SubmitDialogsRequest body schemas.SubmitDialogsRequest true "Submit Dialogs Request"
// @Success 202 {object} schemas.SubmitDialogsResponse
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Router /api/processing/dialogs [post]
func (pc *ProcessingController) SubmitDialogs(ctx *gin.Context) {
	var req schemas.SubmitDialogsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.SendError(ctx, schemas.NewBadRequestError("Invalid JSON format: "+err.Error(), ctx.FullPath()))
		return
	}

	sess, ok := middleware.SessionFrom(ctx)
	if !ok {
		utils.SendError(ctx, schemas.NewUnauthorizedError("Session missing from request context", ctx.FullPath()))
		return
	}

	taskIDs := make([]string, 0, len(req.DialogIDs))
	for _, dialogID := range req.DialogIDs {
		task := &models.QueueTask{
			ResourceID: dialogID,
			SessionID:  sess.ID,
			OwnerID:    sess.OwnerID,
		}
		if err := pc.Queue.Submit(task); err != nil {
			utils.SendError(ctx, utils.MapError(err, ctx.FullPath()))
			return
		}
		taskIDs = append(taskIDs, task.ID)
	}

	ctx.JSON(http.StatusAccepted, schemas.SubmitDialogsResponse{
		Queued:  len(taskIDs),
		TaskIDs: taskIDs,
	})
}

// @Summary Queue status
// @Description Point-in-time snapshot of the task queue. Reading it has no side effects.
// @Tags processing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} schemas.QueueStatus
// @Failure 401 {object} schemas.ErrorResponse
// @Router /api/processing/queue [get]
func (pc *ProcessingController) QueueStatus(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, pc.Queue.Status())
}

// @Summary Clear pending tasks
// @Description Cancels every queued task. In-flight tasks run to completion.
// @Tags processing
// @Produce json
// @Security BearerAuth
// @Success 200 {object} schemas.ClearQueueResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Router /api/processing/queue [delete]
func (pc *ProcessingController) ClearQueue(ctx *gin.Context) {
	removed := pc.Queue.ClearPending()
	ctx.JSON(http.StatusOK, schemas.ClearQueueResponse{Removed: removed})
}

// @Summary List suggested replies
// @Description Returns the caller's most recent drafts awaiting approval.
// @Tags processing
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum drafts to return" default(50)
// @Success 200 {array} schemas.DraftResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /api/processing/results [get]
func (pc *ProcessingController) ListDrafts(ctx *gin.Context) {
	sess, ok := middleware.SessionFrom(ctx)
	if !ok {
		utils.SendError(ctx, schemas.NewUnauthorizedError("Session missing from request context", ctx.FullPath()))
		return
	}

	limit := 50
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.SendError(ctx, schemas.NewBadRequestError("limit must be a positive integer", ctx.FullPath()))
			return
		}
		limit = n
	}

	drafts, err := pc.Drafts.ListByOwner(ctx.Request.Context(), sess.OwnerID, limit)
	if err != nil {
		utils.SendError(ctx, schemas.NewInternalError("Failed to list drafts", ctx.FullPath()))
		return
	}

	out := make([]schemas.DraftResponse, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, schemas.DraftResponse{
			ID:             d.ID,
			DialogID:       d.DialogID,
			MessageID:      d.MessageID,
			ModelName:      d.ModelName,
			SuggestedReply: d.SuggestedReply,
			Status:         string(d.Status),
			Error:          d.Error,
			CreatedAt:      d.CreatedAt,
			CompletedAt:    d.CompletedAt,
		})
	}
	ctx.JSON(http.StatusOK, out)
}

// @Summary List dialogs
// @Description Lists the caller's provider conversations, most recent first.
// @Tags dialogs
// @Produce json
// @Security BearerAuth
// @Success 200 {array} schemas.DialogResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Failure 502 {object} schemas.ErrorResponse
// @Router /api/dialogs [get]
func (pc *ProcessingController) ListDialogs(ctx *gin.Context) {
	sess, ok := middleware.SessionFrom(ctx)
	if !ok {
		utils.SendError(ctx, schemas.NewUnauthorizedError("Session missing from request context", ctx.FullPath()))
		return
	}

	client, err := pc.Clients.Client(sess.ID)
	if err != nil {
		utils.SendError(ctx, utils.MapError(err, ctx.FullPath()))
		return
	}

	dialogs, err := client.FetchDialogs(ctx.Request.Context())
	if err != nil {
		utils.SendError(ctx, schemas.NewBadGatewayError("Failed to fetch dialogs from provider", ctx.FullPath()))
		return
	}

	sort.Slice(dialogs, func(i, j int) bool {
		return dialogs[i].LastMessage.After(dialogs[j].LastMessage)
	})
	out := make([]schemas.DialogResponse, 0, len(dialogs))
	for _, d := range dialogs {
		out = append(out, schemas.DialogResponse{
			ID:          d.ID,
			Title:       d.Title,
			UnreadCount: d.UnreadCount,
			LastMessage: d.LastMessage,
		})
	}
	ctx.JSON(http.StatusOK, out)
}

// @Summary Approve a draft
// @Description Sends the suggested reply through the provider and marks the draft approved.
// @Tags processing
// @Produce json
// @Security BearerAuth
// @Param id path string true "Draft ID"
// @Success 200 {object} schemas.DraftDecisionResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Failure 409 {object} schemas.ErrorResponse
// @Failure 502 {object} schemas.ErrorResponse
// @Router /api/processing/results/{id}/approve [post]
func (pc *ProcessingController) ApproveDraft(ctx *gin.Context) {
	sess, draft, ok := pc.loadOwnedDraft(ctx)
	if !ok {
		return
	}

	client, err := pc.Clients.Client(sess.ID)
	if err != nil {
		utils.SendError(ctx, utils.MapError(err, ctx.FullPath()))
		return
	}

	receipt, err := client.SendMessage(ctx.Request.Context(), draft.DialogID, draft.SuggestedReply)
	if err != nil {
		utils.SendError(ctx, schemas.NewBadGatewayError("Failed to send reply through provider", ctx.FullPath()))
		return
	}

	if err := pc.Drafts.UpdateStatus(ctx.Request.Context(), draft.ID, models.DraftApproved); err != nil {
		// The reply already went out; report the stale record instead of
		// pretending the send failed.
		slog.Warn("Draft status update failed after send",
			"draft_id", draft.ID, "error", err)
	}

	ctx.JSON(http.StatusOK, schemas.DraftDecisionResponse{
		DraftID:   draft.ID,
		Status:    string(models.DraftApproved),
		MessageID: receipt.MessageID,
		SentAt:    &receipt.SentAt,
	})
}

// @Summary Reject a draft
// @Description Marks the draft rejected without sending anything.
// @Tags processing
// @Produce json
// @Security BearerAuth
// @Param id path string true "Draft ID"
// @Success 200 {object} schemas.DraftDecisionResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Failure 404 {object} schemas.ErrorResponse
// @Failure 409 {object} schemas.ErrorResponse
// @Router /api/processing/results/{id}/reject [post]
func (pc *ProcessingController) RejectDraft(ctx *gin.Context) {
	_, draft, ok := pc.loadOwnedDraft(ctx)
	if !ok {
		return
	}

	if err := pc.Drafts.UpdateStatus(ctx.Request.Context(), draft.ID, models.DraftRejected); err != nil {
		utils.SendError(ctx, schemas.NewInternalError("Failed to update draft", ctx.FullPath()))
		return
	}

	ctx.JSON(http.StatusOK, schemas.DraftDecisionResponse{
		DraftID: draft.ID,
		Status:  string(models.DraftRejected),
	})
}

// loadOwnedDraft resolves the draft named in the path, enforcing that it
// belongs to the caller and is still awaiting a decision. Drafts of other
// owners read as not found.
func (pc *ProcessingController) loadOwnedDraft(ctx *gin.Context) (*models.Session, *models.Draft, bool) {
	sess, ok := middleware.SessionFrom(ctx)
	if !ok {
		utils.SendError(ctx, schemas.NewUnauthorizedError("Session missing from request context", ctx.FullPath()))
		return nil, nil, false
	}

	id := ctx.Param("id")
	draft, err := pc.Drafts.GetByID(ctx.Request.Context(), id)
	if errors.Is(err, models.ErrDraftNotFound) {
		utils.SendError(ctx, schemas.NewNotFoundError("Draft not found", ctx.FullPath()))
		return nil, nil, false
	}
	if err != nil {
		utils.SendError(ctx, schemas.NewInternalError("Failed to load draft", ctx.FullPath()))
		return nil, nil, false
	}
	if draft.OwnerID != sess.OwnerID {
		utils.SendError(ctx, schemas.NewNotFoundError("Draft not found", ctx.FullPath()))
		return nil, nil, false
	}
	if draft.Status != models.DraftPendingApproval {
		utils.SendError(ctx, schemas.NewConflictError("Draft is already decided", ctx.FullPath()))
		return nil, nil, false
	}
	return sess, draft, true
}
