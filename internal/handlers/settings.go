package handlers

import (
	"campuschat/internal/middleware"
	"campuschat/internal/models"
	"campuschat/internal/services"
	"campuschat/internal/utils"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settingsService *services.SettingsService
}

func NewSettingsHandler(settingsService *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{
		settingsService: settingsService,
	}
}

// User Settings

func (h *SettingsHandler) GetUserSettings(c *gin.Context) {
	settings, err := h.settingsService.GetUserSettings(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to retrieve user settings")
		return
	}

	utils.SuccessResponse(c, settings)
}

func (h *SettingsHandler) UpdateUserSettings(c *gin.Context) {
	var settings models.UserSettings
	if !bindJSON(c, &settings) {
		return
	}

	updated, err := h.settingsService.UpdateUserSettings(c.Request.Context(), middleware.UserID(c), settings)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to update user settings")
		return
	}

	utils.SuccessResponseWithMessage(c, "User settings updated successfully", updated)
}

func (h *SettingsHandler) ResetUserSettings(c *gin.Context) {
	settings, err := h.settingsService.ResetUserSettings(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to reset user settings")
		return
	}

	utils.SuccessResponseWithMessage(c, "User settings reset to defaults", settings)
}
