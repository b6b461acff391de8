package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"campuschat/internal/config"
	"campuschat/internal/middleware"
	"campuschat/internal/websocket"
	"campuschat/pkg/logger"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, cfg config.WebSocketConfig, cors config.CORSConfig) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     originChecker(cfg.CheckOrigin, cors.AllowedOrigins),
		},
	}
}

// originChecker accepts same-host origins and the configured CORS origins.
// With checking disabled every origin is accepted.
func originChecker(enabled bool, allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if !enabled {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// HandleWebSocket upgrades an authenticated request and attaches the
// connection to the hub.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := middleware.UserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := websocket.NewClient(conn, h.hub, userID)
	client.IP = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")

	if !h.hub.Connect(client) {
		conn.Close()
		return
	}

	logger.LogUserAction(userID, "websocket_connected", map[string]interface{}{
		"ip":         client.IP,
		"user_agent": client.UserAgent,
	})

	go client.WritePump()
	go client.ReadPump()
}
