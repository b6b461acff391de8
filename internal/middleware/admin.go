package middleware

import (
	"campuschat/internal/utils"
	"campuschat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireAdmin aborts unless SessionAuth resolved an admin user.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			utils.UnauthorizedResponse(c, "")
			c.Abort()
			return
		}
		if !user.IsAdmin {
			logger.LogSecurityEvent("admin_required", user.ID, c.ClientIP(), map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.FullPath(),
			})
			utils.ForbiddenResponse(c, "Admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}
