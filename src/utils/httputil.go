package utils

import (
	"errors"

	"dialog-processor/src/models"
	"dialog-processor/src/schemas"

	"github.com/bytedance/gopkg/util/logger"
	"github.com/gin-gonic/gin"
)

// SendError writes an RFC 7807 error response and logs it.
func SendError(ctx *gin.Context, errResp *schemas.ErrorResponse) {
	ctx.JSON(errResp.Status, errResp)
	logger.Error("Error: ", errResp.Detail)
}

// MapError translates a domain error into the HTTP error response for it.
// Token and session failures are both 401 so callers cannot distinguish a
// forged token from a missing session.
func MapError(err error, instance string) *schemas.ErrorResponse {
	var authErr *models.AuthenticationError
	var sessErr *models.SessionError
	var dbErr *models.DatabaseError
	var taskErr *models.TaskProcessingError

	switch {
	case errors.As(err, &authErr), errors.As(err, &sessErr):
		return schemas.NewUnauthorizedError("Invalid or expired session", instance)
	case errors.Is(err, models.ErrEmptyResourceID):
		return schemas.NewBadRequestError(err.Error(), instance)
	case errors.Is(err, models.ErrClientUnavailable), errors.As(err, &taskErr):
		return schemas.NewBadGatewayError(err.Error(), instance)
	case errors.As(err, &dbErr):
		return schemas.NewInternalError("Storage failure, try again later", instance)
	default:
		return schemas.NewInternalError(err.Error(), instance)
	}
}

// AbortWithError maps, sends and aborts in one call for middleware use.
func AbortWithError(ctx *gin.Context, err error) {
	SendError(ctx, MapError(err, ctx.FullPath()))
	ctx.Abort()
}
