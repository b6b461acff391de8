package handlers

import (
	"time"

	"campuschat/internal/catalog"
	"campuschat/internal/middleware"
	"campuschat/internal/models"
	"campuschat/internal/services"
	"campuschat/internal/utils"
	"campuschat/internal/websocket"
	"campuschat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	userService     *services.UserService
	presenceService *services.PresenceService
	callService     *services.CallService
	catalog         *catalog.Service
	hub             *websocket.Hub
	ringTimeout     time.Duration
	startedAt       time.Time
}

func NewAdminHandler(userService *services.UserService, presenceService *services.PresenceService, callService *services.CallService, catalogService *catalog.Service, hub *websocket.Hub, ringTimeout time.Duration) *AdminHandler {
	return &AdminHandler{
		userService:     userService,
		presenceService: presenceService,
		callService:     callService,
		catalog:         catalogService,
		hub:             hub,
		ringTimeout:     ringTimeout,
		startedAt:       time.Now(),
	}
}

type setAdminRequest struct {
	Admin *bool `json:"admin" binding:"required"`
}

// Dashboard

func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context(), "")
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load dashboard")
		return
	}

	today := time.Now().Format(models.DayFormat)
	online, admins, present := 0, 0, 0
	for _, u := range users {
		if u.IsOnline {
			online++
		}
		if u.PresentOn(today) {
			present++
		}
		if u.IsAdmin {
			admins++
		}
	}

	stats := map[string]interface{}{
		"total_users":   len(users),
		"online_users":  online,
		"admin_users":   admins,
		"present_today": present,
		"server_uptime": time.Since(h.startedAt).Round(time.Second).String(),
	}
	if h.hub != nil {
		stats["websocket"] = h.hub.GetStats()
	}

	utils.SuccessResponse(c, stats)
}

// User Management

// SetAdmin grants or revokes admin rights on a user.
func (h *AdminHandler) SetAdmin(c *gin.Context) {
	var req setAdminRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.SetAdmin(c.Request.Context(), middleware.UserID(c), c.Param("id"), *req.Admin)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to update admin rights")
		return
	}

	utils.SuccessResponseWithMessage(c, "Admin rights updated", user)
}

// GetRoster lists every user's standing for ?day, defaulting to today.
func (h *AdminHandler) GetRoster(c *gin.Context) {
	var q dayQuery
	if !bindQuery(c, &q) {
		return
	}

	roster, err := h.presenceService.Roster(c.Request.Context(), q.Day)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load roster")
		return
	}

	utils.SuccessResponseWithMeta(c, roster, &utils.Meta{Total: len(roster)})
}

// Catalog

// SyncArtist copies an artist's albums and tracks into the local library.
func (h *AdminHandler) SyncArtist(c *gin.Context) {
	artistID := c.Param("id")
	lib, err := h.catalog.SyncArtist(c.Request.Context(), artistID)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to sync artist")
		return
	}

	logger.LogAdminAction(middleware.UserID(c), "sync_artist", artistID, map[string]interface{}{
		"albums": len(lib.Albums),
		"tracks": len(lib.Tracks),
	})
	utils.SuccessResponseWithMessage(c, "Artist synced", lib)
}

func (h *AdminHandler) ClearCache(c *gin.Context) {
	purged, err := h.catalog.PurgeCache(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to clear cache")
		return
	}

	logger.LogAdminAction(middleware.UserID(c), "clear_cache", "", map[string]interface{}{"purged": purged})
	utils.SuccessResponseWithMessage(c, "Cache cleared", gin.H{"purged": purged})
}

// Calls

// SweepCalls marks calls that rang past the ring timeout as missed.
func (h *AdminHandler) SweepCalls(c *gin.Context) {
	missed, err := h.callService.SweepUnanswered(c.Request.Context(), h.ringTimeout)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to sweep calls")
		return
	}

	logger.LogAdminAction(middleware.UserID(c), "sweep_calls", "", map[string]interface{}{"missed": missed})
	utils.SuccessResponse(c, gin.H{"missed": missed})
}
