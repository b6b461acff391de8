package handlers

import (
	"campuschat/internal/middleware"
	"campuschat/internal/services"
	"campuschat/internal/utils"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// ListUsers returns every user, optionally filtered by ?q against name,
// class and phone.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context(), c.Query("q"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to list users")
		return
	}

	utils.SuccessResponseWithMeta(c, users, &utils.Meta{Total: len(users)})
}

func (h *UserHandler) GetMe(c *gin.Context) {
	h.writeUser(c, middleware.UserID(c))
}

func (h *UserHandler) GetUser(c *gin.Context) {
	h.writeUser(c, c.Param("id"))
}

func (h *UserHandler) writeUser(c *gin.Context, userID string) {
	user, err := h.userService.Get(c.Request.Context(), userID)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load user")
		return
	}

	utils.SuccessResponse(c, user)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req services.ProfileUpdate
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to update profile")
		return
	}

	utils.SuccessResponseWithMessage(c, "Profile updated", user)
}

// UploadAvatar accepts a multipart "file" and stores it on the media CDN.
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	file, done, ok := formFile(c)
	if !ok {
		return
	}
	defer done()

	user, err := h.userService.SetAvatar(c.Request.Context(), middleware.UserID(c), file)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to upload avatar")
		return
	}

	utils.SuccessResponseWithMessage(c, "Avatar updated", user)
}
