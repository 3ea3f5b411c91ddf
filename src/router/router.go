package router

import (
	"net/http"

	"dialog-processor/src/controller"
	"dialog-processor/src/middleware"
	"dialog-processor/src/session"

	"github.com/gin-gonic/gin"
)

// NewRouter wires all HTTP routes. Auth endpoints manage the session
// lifecycle; processing endpoints require a fully authenticated session.
func NewRouter(store *session.Store, auth *controller.AuthController, processing *controller.ProcessingController) *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/session", auth.CreateSession)
		authRoutes.POST("/refresh", auth.Refresh)

		authed := authRoutes.Group("")
		authed.Use(middleware.AuthRequired(store))
		{
			authed.GET("/session", auth.SessionStatus)
			authed.POST("/attach", auth.AttachOwner)
			authed.POST("/logout", auth.Logout)
		}
	}

	dialogRoutes := api.Group("/dialogs")
	dialogRoutes.Use(middleware.AuthRequired(store), middleware.RequireAuthenticated())
	{
		dialogRoutes.GET("", processing.ListDialogs)
	}

	processingRoutes := api.Group("/processing")
	processingRoutes.Use(middleware.AuthRequired(store), middleware.RequireAuthenticated())
	{
		processingRoutes.POST("/dialogs", processing.SubmitDialogs)
		processingRoutes.GET("/queue", processing.QueueStatus)
		processingRoutes.DELETE("/queue", processing.ClearQueue)
		processingRoutes.GET("/results", processing.ListDrafts)
		processingRoutes.POST("/results/:id/approve", processing.ApproveDraft)
		processingRoutes.POST("/results/:id/reject", processing.RejectDraft)
	}

	return r
}
