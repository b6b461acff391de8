package middleware

import (
	"context"
	"errors"
	"strings"

	"campuschat/internal/models"
	"campuschat/internal/utils"
	"campuschat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Context keys set by SessionAuth.
const (
	ContextUserID = "user_id"
	ContextUser   = "user"
)

// SessionValidator resolves a bearer token to its user.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*models.User, error)
}

// SessionAuth middleware for user session validation. Browsers cannot set
// headers on WebSocket upgrades, so the token may also come as the
// session_token query parameter.
func SessionAuth(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			sessionToken := c.Query("session_token")
			if sessionToken == "" {
				utils.UnauthorizedResponse(c, "Missing session token")
				c.Abort()
				return
			}
			authHeader = "Bearer " + sessionToken
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || tokenString == "" {
			utils.UnauthorizedResponse(c, "Invalid token format")
			c.Abort()
			return
		}

		user, err := sessions.ValidateSession(c.Request.Context(), tokenString)
		if err != nil {
			if errors.Is(err, models.ErrSessionRevoked) {
				logger.LogSecurityEvent("session_revoked", "", c.ClientIP(), map[string]interface{}{"path": c.FullPath()})
				utils.UnauthorizedResponse(c, "Session ended: signed in on another device")
			} else {
				utils.HandleServiceError(c, err, "Failed to validate session")
			}
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Next()
	}
}

// UserID returns the authenticated user's id, or "" before SessionAuth.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// CurrentUser returns the authenticated user, or nil before SessionAuth.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
