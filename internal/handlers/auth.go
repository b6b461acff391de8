package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"campuschat/internal/middleware"
	"campuschat/internal/models"
	"campuschat/internal/services"
	"campuschat/internal/utils"
	"campuschat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to register")
		return
	}

	created(c, "Registration successful", user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCredentials) {
			logger.LogSecurityEvent("login_failed", "", c.ClientIP(), nil)
		}
		utils.HandleServiceError(c, err, "Failed to sign in")
		return
	}

	utils.SuccessResponseWithMessage(c, "Login successful", session)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	userID := middleware.UserID(c)
	if err := h.authService.Logout(c.Request.Context(), userID); err != nil {
		utils.HandleServiceError(c, err, "Failed to sign out")
		return
	}

	utils.SuccessResponseWithMessage(c, "Logged out", nil)
}

// MagicLink returns the messenger hand-off link for a user. Users may
// request their own link; admins may request anyone's.
func (h *AuthHandler) MagicLink(c *gin.Context) {
	link, err := h.authService.BuildMagicLink(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to build magic link")
		return
	}

	utils.SuccessResponse(c, link)
}

// MagicLogin is the public landing endpoint of a magic link. Rejected links
// answer 401 and tell the client where to go and when.
func (h *AuthHandler) MagicLogin(c *gin.Context) {
	var params services.MagicLinkParams
	if err := c.ShouldBindQuery(&params); err != nil {
		utils.ValidationErrorResponse(c, utils.BindingDetails(err))
		return
	}

	session, err := h.authService.MagicLogin(c.Request.Context(), params)
	if err != nil {
		var linkErr *services.MagicLinkError
		if errors.As(err, &linkErr) {
			seconds := int(linkErr.RedirectAfter.Seconds())
			c.Header("Refresh", fmt.Sprintf("%d; url=%s", seconds, linkErr.RedirectTo))
			utils.ErrorResponseWithDetails(c, http.StatusUnauthorized, "Invalid login link", map[string]string{
				"reason":         linkErr.Reason,
				"redirect_to":    linkErr.RedirectTo,
				"redirect_after": fmt.Sprintf("%ds", seconds),
			})
			return
		}
		utils.HandleServiceError(c, err, "Failed to sign in")
		return
	}

	utils.SuccessResponseWithMessage(c, "Login successful", session)
}
