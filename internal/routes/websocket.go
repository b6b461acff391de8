package routes

import (
	"campuschat/internal/handlers"

	"github.com/gin-gonic/gin"
)

// SetupWebSocketRoutes mounts the realtime endpoint. Browsers pass the
// session token as ?session_token on the upgrade request.
func SetupWebSocketRoutes(router *gin.Engine, wsHandler *handlers.WebSocketHandler, sessionAuth gin.HandlerFunc) {
	router.GET("/ws", sessionAuth, wsHandler.HandleWebSocket)
}
