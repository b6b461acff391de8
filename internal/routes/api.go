package routes

import (
	"context"
	"net/http"
	"time"

	"campuschat/internal/catalog"
	"campuschat/internal/config"
	"campuschat/internal/handlers"
	"campuschat/internal/metrics"
	"campuschat/internal/middleware"
	"campuschat/internal/services"
	"campuschat/internal/websocket"

	"github.com/gin-gonic/gin"
)

// Dependencies are the services the HTTP API is built on.
type Dependencies struct {
	Config   *config.Config
	Auth     *services.AuthService
	Users    *services.UserService
	Settings *services.SettingsService
	Presence *services.PresenceService
	Chats    *services.ChatService
	Calls    *services.CallService
	Catalog  *catalog.Service
	Hub      *websocket.Hub
	Limiters *Limiters

	// Health adds database status to /health when set.
	Health func(ctx context.Context) map[string]interface{}
}

// Limiters holds the per-client rate limiters. A nil limiter disables the
// corresponding limit.
type Limiters struct {
	API      *middleware.RateLimiter
	Login    *middleware.RateLimiter
	Messages *middleware.RateLimiter
}

// NewLimiters builds the limiters from config. Disabled rate limiting
// yields an empty set.
func NewLimiters(cfg config.RateLimitConfig) *Limiters {
	if !cfg.Enabled {
		return &Limiters{}
	}
	l := &Limiters{
		API:      middleware.NewRateLimiter(cfg.RequestsPerSec, cfg.Burst),
		Messages: middleware.NewRateLimiter(cfg.MessagesPerSec, int(cfg.MessagesPerSec)+1),
	}
	if cfg.LoginPerMin > 0 {
		l.Login = middleware.NewRateLimiter(float64(cfg.LoginPerMin)/60, cfg.LoginPerMin)
	}
	return l
}

// StartCleanup evicts idle visitors from every limiter until ctx is done.
func (l *Limiters) StartCleanup(ctx context.Context, idle time.Duration) {
	for _, rl := range []*middleware.RateLimiter{l.API, l.Login, l.Messages} {
		if rl != nil {
			go rl.StartCleanup(ctx, idle)
		}
	}
}

func limit(rl *middleware.RateLimiter, message string) gin.HandlerFunc {
	if rl == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(rl, message)
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	if deps.Limiters == nil {
		deps.Limiters = &Limiters{}
	}

	// Initialize handlers with dependencies
	authHandler := handlers.NewAuthHandler(deps.Auth)
	userHandler := handlers.NewUserHandler(deps.Users)
	settingsHandler := handlers.NewSettingsHandler(deps.Settings)
	presenceHandler := handlers.NewPresenceHandler(deps.Presence)
	chatHandler := handlers.NewChatHandler(deps.Chats)
	callHandler := handlers.NewCallHandler(deps.Calls)
	musicHandler := handlers.NewMusicHandler(deps.Catalog)
	adminHandler := handlers.NewAdminHandler(deps.Users, deps.Presence, deps.Calls, deps.Catalog, deps.Hub, cfg.Calls.RingTimeout)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, cfg.Server.WebSocket, cfg.Server.CORS)

	// Global middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.CORS))
	router.Use(metrics.Middleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"message": "Server is running",
			"version": cfg.App.Version,
		}
		status := http.StatusOK
		if deps.Health != nil {
			db := deps.Health(c.Request.Context())
			body["database"] = db
			if db["status"] != "connected" {
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, body)
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	sessionAuth := middleware.SessionAuth(deps.Auth)
	adminOnly := middleware.RequireAdmin()

	v1 := router.Group("/api/v1")
	v1.Use(limit(deps.Limiters.API, "Too many requests"))

	// Authentication routes
	SetupAuthRoutes(router, v1, authHandler, sessionAuth, limit(deps.Limiters.Login, "Too many login attempts"))

	// Protected routes (require user session)
	protected := v1.Group("/")
	protected.Use(sessionAuth)
	{
		users := protected.Group("/users")
		{
			users.GET("", userHandler.ListUsers)
			users.GET("/me", userHandler.GetMe)
			users.PUT("/me", userHandler.UpdateMe)
			users.PUT("/me/avatar", userHandler.UploadAvatar)
			users.GET("/me/settings", settingsHandler.GetUserSettings)
			users.PUT("/me/settings", settingsHandler.UpdateUserSettings)
			users.POST("/me/settings/reset", settingsHandler.ResetUserSettings)
			users.GET("/:id", userHandler.GetUser)
			users.PUT("/:id/admin", adminOnly, adminHandler.SetAdmin)
		}

		presence := protected.Group("/presence")
		{
			presence.GET("/roster", adminOnly, adminHandler.GetRoster)
			presence.POST("/:userId/toggle", presenceHandler.Toggle)
			presence.PUT("/:userId", presenceHandler.Mark)
			presence.GET("/:userId/history", presenceHandler.History)
		}

		chats := protected.Group("/chats")
		{
			chats.GET("", chatHandler.ListChats)
			chats.POST("/private", chatHandler.CreatePrivate)
			chats.POST("/group", chatHandler.CreateGroup)
			chats.GET("/community", chatHandler.Community)
			chats.GET("/search", chatHandler.SearchChats)
			chats.GET("/:id", chatHandler.GetChat)
			chats.POST("/:id/members", chatHandler.AddMembers)
			chats.DELETE("/:id/members/:userId", chatHandler.RemoveMember)
			chats.POST("/:id/leave", chatHandler.Leave)
			chats.PUT("/:id/photo", chatHandler.SetPhoto)
			chats.GET("/:id/messages", chatHandler.GetMessages)
			chats.POST("/:id/messages", limit(deps.Limiters.Messages, "You are sending messages too quickly"), chatHandler.SendMessage)
			chats.POST("/:id/read", chatHandler.MarkRead)
			chats.POST("/:id/unread", chatHandler.MarkUnread)
			chats.POST("/:id/mute", chatHandler.ToggleMute)
			chats.POST("/:id/pin", chatHandler.TogglePin)
			chats.POST("/:id/archive", chatHandler.ToggleArchive)
			chats.POST("/:id/typing", chatHandler.SetTyping)
			chats.POST("/:id/pinned/:messageId", chatHandler.PinMessage)
			chats.DELETE("/:id/pinned/:messageId", chatHandler.UnpinMessage)
		}

		messages := protected.Group("/messages")
		{
			messages.POST("/:id/star", chatHandler.ToggleStar)
			messages.DELETE("/:id", chatHandler.DeleteForMe)
			messages.DELETE("/:id/everyone", chatHandler.DeleteForEveryone)
			messages.POST("/:id/forward", chatHandler.Forward)
			messages.GET("/:id/locate", chatHandler.Locate)
		}

		calls := protected.Group("/calls")
		{
			calls.POST("", callHandler.StartCall)
			calls.GET("/history", callHandler.History)
			calls.GET("/ice-servers", callHandler.GetICEServers)
			calls.GET("/:id", callHandler.GetCall)
			calls.POST("/:id/offer", callHandler.SetOffer)
			calls.POST("/:id/answer", callHandler.Answer)
			calls.POST("/:id/candidates", callHandler.AddCandidate)
			calls.POST("/:id/end", callHandler.EndCall)
			calls.POST("/:id/reject", callHandler.RejectCall)
		}

		music := protected.Group("/music")
		{
			music.GET("/search", musicHandler.Search)
			music.GET("/artists/:id", musicHandler.GetArtist)
			music.GET("/artists/:id/albums", musicHandler.GetArtistAlbums)
			music.GET("/artists/:id/top-tracks", musicHandler.GetArtistTopTracks)
			music.GET("/artists/:id/library", musicHandler.GetLibrary)
			music.POST("/artists/:id/sync", adminOnly, adminHandler.SyncArtist)
			music.GET("/albums/:id", musicHandler.GetAlbum)
			music.GET("/tracks/:id", musicHandler.GetTrack)
			music.POST("/plays", musicHandler.RecordPlay)
			music.GET("/plays/top", musicHandler.TopPlays)
		}
	}

	// Admin routes
	SetupAdminRoutes(v1, adminHandler, sessionAuth)

	// WebSocket routes
	SetupWebSocketRoutes(router, wsHandler, sessionAuth)
}
