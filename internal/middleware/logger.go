package middleware

import (
	"net/http"
	"time"

	"campuschat/internal/utils"
	"campuschat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs every request through the structured logger.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if path == "/health" || path == "/metrics" {
			return
		}
		logger.LogRequest(c.Request.Method, path, c.ClientIP(), c.Request.UserAgent(), time.Since(start), c.Writer.Status())
	}
}

// Recovery turns a panic into a logged 500 response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithField("panic", recovered).WithField("path", c.Request.URL.Path).Error("Recovered from panic")
		if !c.Writer.Written() {
			utils.InternalErrorResponse(c, "")
		}
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
