package routes

import (
	"campuschat/internal/handlers"
	"campuschat/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupAdminRoutes(v1 *gin.RouterGroup, adminHandler *handlers.AdminHandler, sessionAuth gin.HandlerFunc) {
	admin := v1.Group("/admin")
	admin.Use(sessionAuth, middleware.RequireAdmin())
	{
		admin.GET("/stats", adminHandler.GetDashboardStats)
		admin.POST("/cache/clear", adminHandler.ClearCache)
		admin.POST("/calls/sweep", adminHandler.SweepCalls)
	}
}
