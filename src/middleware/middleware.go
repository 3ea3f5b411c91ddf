package middleware

import (
	"context"
	"strings"

	"dialog-processor/src/models"
	"dialog-processor/src/schemas"
	"dialog-processor/src/utils"

	"github.com/gin-gonic/gin"
)

const (
	sessionKey = "session"
	tokenKey   = "session_token"
)

// SessionVerifier is the slice of the session store the middleware needs.
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*models.Session, error)
}

// AuthRequired verifies the bearer token on every request and stores the
// resolved session in the gin context.
func AuthRequired(store SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.SendError(c, schemas.NewUnauthorizedError("Authorization header missing", c.FullPath()))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.SendError(c, schemas.NewUnauthorizedError("Invalid authorization header format", c.FullPath()))
			c.Abort()
			return
		}

		raw := parts[1]
		sess, err := store.Verify(c.Request.Context(), raw)
		if err != nil {
			utils.AbortWithError(c, err)
			return
		}

		c.Set(sessionKey, sess)
		c.Set(tokenKey, raw)
		c.Next()
	}
}

// SessionFrom returns the session resolved by AuthRequired.
func SessionFrom(c *gin.Context) (*models.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*models.Session)
	return sess, ok
}

// TokenFrom returns the raw bearer token AuthRequired verified.
func TokenFrom(c *gin.Context) (string, bool) {
	v, ok := c.Get(tokenKey)
	if !ok {
		return "", false
	}
	raw, ok := v.(string)
	return raw, ok
}

// RequireAuthenticated guards routes that need a completed login, not just a
// pending session.
func RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := SessionFrom(c)
		if !ok || sess.Status != models.SessionAuthenticated {
			utils.SendError(c, schemas.NewConflictError("Session is not authenticated yet", c.FullPath()))
			c.Abort()
			return
		}
		c.Next()
	}
}
