package routes

import (
	"campuschat/internal/handlers"

	"github.com/gin-gonic/gin"
)

func SetupAuthRoutes(router *gin.Engine, v1 *gin.RouterGroup, authHandler *handlers.AuthHandler, sessionAuth, loginLimit gin.HandlerFunc) {
	auth := v1.Group("/auth")
	{
		// Public auth endpoints
		auth.POST("/register", loginLimit, authHandler.Register)
		auth.POST("/login", loginLimit, authHandler.Login)
		auth.GET("/magic-login", loginLimit, authHandler.MagicLogin)

		// Protected auth endpoints
		auth.POST("/logout", sessionAuth, authHandler.Logout)
		auth.GET("/magic-link/:id", sessionAuth, authHandler.MagicLink)
	}

	// Magic links point at the site root.
	router.GET("/magic-login", loginLimit, authHandler.MagicLogin)
}
