package handlers

import (
	"campuschat/internal/middleware"
	"campuschat/internal/models"
	"campuschat/internal/services"
	"campuschat/internal/utils"

	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	presenceService *services.PresenceService
}

func NewPresenceHandler(presenceService *services.PresenceService) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
	}
}

type dayQuery struct {
	Day string `form:"day" binding:"omitempty,day"`
}

type markRequest struct {
	Day    string                `json:"day" binding:"omitempty,day"`
	Status models.PresenceStatus `json:"status" binding:"required,presence_status"`
}

type historyQuery struct {
	From string `form:"from" binding:"omitempty,day"`
	To   string `form:"to" binding:"omitempty,day"`
}

// Toggle flips the user's standing for ?day, defaulting to today.
func (h *PresenceHandler) Toggle(c *gin.Context) {
	var q dayQuery
	if !bindQuery(c, &q) {
		return
	}

	record, err := h.presenceService.Toggle(c.Request.Context(), middleware.UserID(c), c.Param("userId"), q.Day)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to toggle presence")
		return
	}

	utils.SuccessResponse(c, record)
}

func (h *PresenceHandler) Mark(c *gin.Context) {
	var req markRequest
	if !bindJSON(c, &req) {
		return
	}

	record, err := h.presenceService.Mark(c.Request.Context(), middleware.UserID(c), c.Param("userId"), req.Day, req.Status)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to mark presence")
		return
	}

	utils.SuccessResponse(c, record)
}

func (h *PresenceHandler) History(c *gin.Context) {
	var q historyQuery
	if !bindQuery(c, &q) {
		return
	}

	records, err := h.presenceService.History(c.Request.Context(), middleware.UserID(c), c.Param("userId"), q.From, q.To)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load presence history")
		return
	}

	utils.SuccessResponseWithMeta(c, records, &utils.Meta{Total: len(records)})
}
