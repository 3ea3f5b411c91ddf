package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"dialog-processor/src/middleware"
	"dialog-processor/src/models"
	"dialog-processor/src/rabbitmq"
	"dialog-processor/src/schemas"
	"dialog-processor/src/utils"

	"github.com/gin-gonic/gin"
)

// SessionManager is the slice of the session store the auth endpoints use.
type SessionManager interface {
	Create(ctx context.Context, ownerID string, ttl time.Duration, metadata map[string]string) (*models.Session, error)
	Refresh(ctx context.Context, rawRefresh string) (*models.Session, error)
	Attach(ctx context.Context, raw, ownerID string) (*models.Session, error)
	Invalidate(ctx context.Context, raw string) error
}

type AuthController struct {
	Sessions SessionManager
	Events   rabbitmq.Publisher
}

func NewAuthController(sessions SessionManager, events rabbitmq.Publisher) *AuthController {
	return &AuthController{
		Sessions: sessions,
		Events:   events,
	}
}

// @Summary Open a session
// @Description Creates a new session and returns its token pair. Without an owner the session starts PENDING.
// @Tags auth
// @Accept json
// @Produce json
// @Param CreateSessionRequest body schemas.CreateSessionRequest false "Create Session Request"
// @Success 201 {object} schemas.CreateSessionResponse
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /api/auth/session [post]
func (ac *AuthController) CreateSession(ctx *gin.Context) {
	var req schemas.CreateSessionRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			utils.SendError(ctx, schemas.NewBadRequestError("Invalid JSON format: "+err.Error(), ctx.FullPath()))
			return
		}
	}

	sess, err := ac.Sessions.Create(ctx.Request.Context(), req.OwnerID, 0, req.Metadata)
	if err != nil {
		utils.SendError(ctx, utils.MapError(err, ctx.FullPath()))
		return
	}

	ctx.JSON(http.StatusCreated, schemas.CreateSessionResponse{
		Token:        sess.Token,
		RefreshToken: sess.RefreshToken,
		Status:       string(sess.Status),
		ExpiresAt:    sess.ExpiresAt,
	})
}

// @Summary Get session status
// @Description Reports the state of the caller's session.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} schemas.SessionStatusResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Router /api/auth/session [get]
func (ac *AuthController) SessionStatus(ctx *gin.Context) {
	sess, ok := middleware.SessionFrom(ctx)
	if !ok {
		utils.SendError(ctx, schemas.NewUnauthorizedError("Session missing from request context", ctx.FullPath()))
		return
	}

	ctx.JSON(http.StatusOK, schemas.SessionStatusResponse{
		Status:       string(sess.Status),
		OwnerID:      sess.OwnerID,
		ExpiresAt:    sess.ExpiresAt,
		LastActivity: sess.LastActivity,
	})
}

// @Summary Attach owner to session
// @Description Completes a pending login by binding the provider identity to the session.
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param AttachOwnerRequest body schemas.AttachOwnerRequest true "Attach Owner Request"
// @Success 200 {object} schemas.SessionStatusResponse
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Router /api/auth/attach [post]
func (ac *AuthController) AttachOwner(ctx *gin.Context) {
	var req schemas.AttachOwnerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.SendError(ctx, schemas.NewBadRequestError("Invalid JSON format: "+err.Error(), ctx.FullPath()))
		return
	}

	raw, ok := middleware.TokenFrom(ctx)
	if !ok {
		utils.SendError(ctx, schemas.NewUnauthorizedError("Token missing from request context", ctx.FullPath()))
		return
	}

	sess, err := ac.Sessions.Attach(ctx.Request.Context(), raw, req.OwnerID)
	if err != nil {
		utils.SendError(ctx, utils.MapError(err, ctx.FullPath()))
		return
	}

	if err := rabbitmq.PublishEvent(ac.Events, rabbitmq.Event{
		Kind:      "session.authenticated",
		SessionID: sess.ID,
		Status:    string(sess.Status),
	}); err != nil {
		slog.Warn("Event publish failed", "kind", "session.authenticated", "error", err)
	}

	ctx.JSON(http.StatusOK, schemas.SessionStatusResponse{
		Status:       string(sess.Status),
		OwnerID:      sess.OwnerID,
		ExpiresAt:    sess.ExpiresAt,
		LastActivity: sess.LastActivity,
	})
}

// @Summary Refresh access token
// @Description Exchanges a valid refresh token for a new access token and an extended expiry.
// @Tags auth
// @Accept json
// @Produce json
// @Param RefreshRequest body schemas.RefreshRequest true "Refresh Request"
// @Success 200 {object} schemas.RefreshResponse
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 401 {object} schemas.ErrorResponse
// @Router /api/auth/refresh [post]
func (ac *AuthController) Refresh(ctx *gin.Context) {
	var req schemas.RefreshRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.SendError(ctx, schemas.NewBadRequestError("Invalid JSON format: "+err.Error(), ctx.FullPath()))
		return
	}

	sess, err := ac.Sessions.Refresh(ctx.Request.Context(), req.RefreshToken)
	if err != nil {
		utils.SendError(ctx, utils.MapError(err, ctx.FullPath()))
		return
	}

	ctx.JSON(http.StatusOK, schemas.RefreshResponse{
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

// @Summary Log out
// @Description Invalidates the caller's session. Logging out twice is not an error.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} schemas.ErrorResponse
// @Router /api/auth/logout [post]
func (ac *AuthController) Logout(ctx *gin.Context) {
	raw, ok := middleware.TokenFrom(ctx)
	if !ok {
		utils.SendError(ctx, schemas.NewUnauthorizedError("Token missing from request context", ctx.FullPath()))
		return
	}

	if err := ac.Sessions.Invalidate(ctx.Request.Context(), raw); err != nil {
		utils.SendError(ctx, utils.MapError(err, ctx.FullPath()))
		return
	}

	ctx.Status(http.StatusNoContent)
}
