package handlers

import (
	"context"
	"net/http"
	"time"

	"campuschat/internal/middleware"
	"campuschat/internal/models"
	"campuschat/internal/services"
	"campuschat/internal/utils"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService *services.ChatService
}

func NewChatHandler(chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

type createPrivateRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type addMembersRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1,dive,required"`
}

type typingRequest struct {
	Typing bool `json:"typing"`
}

type forwardRequest struct {
	ChatIDs []string `json:"chat_ids" binding:"required,min=1,dive,required"`
}

func created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, utils.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// Chats

// ListChats returns the caller's chats, pinned first then by last activity.
// ?archived=true lists the archive instead.
func (h *ChatHandler) ListChats(c *gin.Context) {
	archived := c.Query("archived") == "true"
	chats, err := h.chatService.List(c.Request.Context(), middleware.UserID(c), archived)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to list chats")
		return
	}

	utils.SuccessResponseWithMeta(c, chats, &utils.Meta{Total: len(chats)})
}

func (h *ChatHandler) SearchChats(c *gin.Context) {
	chats, err := h.chatService.Search(c.Request.Context(), middleware.UserID(c), c.Query("q"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to search chats")
		return
	}

	utils.SuccessResponseWithMeta(c, chats, &utils.Meta{Total: len(chats)})
}

// CreatePrivate returns the one-to-one chat with another user, creating it
// on first use.
func (h *ChatHandler) CreatePrivate(c *gin.Context) {
	var req createPrivateRequest
	if !bindJSON(c, &req) {
		return
	}

	chat, err := h.chatService.CreatePrivate(c.Request.Context(), middleware.UserID(c), req.UserID)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to open chat")
		return
	}

	utils.SuccessResponse(c, chat)
}

func (h *ChatHandler) CreateGroup(c *gin.Context) {
	var req services.CreateGroupRequest
	if !bindJSON(c, &req) {
		return
	}

	chat, err := h.chatService.CreateGroup(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to create group")
		return
	}

	created(c, "Group created", chat)
}

func (h *ChatHandler) Community(c *gin.Context) {
	chat, err := h.chatService.EnsureCommunity(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load community chat")
		return
	}

	utils.SuccessResponse(c, chat)
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	chat, err := h.chatService.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load chat")
		return
	}

	utils.SuccessResponse(c, chat)
}

// Group administration

func (h *ChatHandler) AddMembers(c *gin.Context) {
	var req addMembersRequest
	if !bindJSON(c, &req) {
		return
	}

	chat, err := h.chatService.AddMembers(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.UserIDs)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to add members")
		return
	}

	utils.SuccessResponseWithMessage(c, "Members added", chat)
}

func (h *ChatHandler) RemoveMember(c *gin.Context) {
	chat, err := h.chatService.RemoveMember(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to remove member")
		return
	}

	utils.SuccessResponseWithMessage(c, "Member removed", chat)
}

func (h *ChatHandler) Leave(c *gin.Context) {
	if err := h.chatService.Leave(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		utils.HandleServiceError(c, err, "Failed to leave group")
		return
	}

	utils.SuccessResponseWithMessage(c, "Left group", nil)
}

func (h *ChatHandler) SetPhoto(c *gin.Context) {
	file, done, ok := formFile(c)
	if !ok {
		return
	}
	defer done()

	chat, err := h.chatService.SetPhoto(c.Request.Context(), middleware.UserID(c), c.Param("id"), file)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to update group photo")
		return
	}

	utils.SuccessResponseWithMessage(c, "Group photo updated", chat)
}

// Per-member state

func (h *ChatHandler) MarkRead(c *gin.Context) {
	h.memberAction(c, h.chatService.MarkRead, "Failed to mark chat as read")
}

func (h *ChatHandler) MarkUnread(c *gin.Context) {
	h.memberAction(c, h.chatService.MarkUnread, "Failed to mark chat as unread")
}

func (h *ChatHandler) ToggleMute(c *gin.Context) {
	h.memberAction(c, h.chatService.ToggleMute, "Failed to toggle mute")
}

func (h *ChatHandler) TogglePin(c *gin.Context) {
	h.memberAction(c, h.chatService.TogglePin, "Failed to toggle pin")
}

func (h *ChatHandler) ToggleArchive(c *gin.Context) {
	h.memberAction(c, h.chatService.ToggleArchive, "Failed to toggle archive")
}

type memberActionFunc func(ctx context.Context, userID, chatID string) (*models.Chat, error)

func (h *ChatHandler) memberAction(c *gin.Context, action memberActionFunc, failure string) {
	chat, err := action(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, failure)
		return
	}

	utils.SuccessResponse(c, chat)
}

func (h *ChatHandler) SetTyping(c *gin.Context) {
	var req typingRequest
	if !bindJSON(c, &req) {
		return
	}

	chat, err := h.chatService.SetTyping(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Typing)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to update typing indicator")
		return
	}

	utils.SuccessResponse(c, chat)
}

func (h *ChatHandler) PinMessage(c *gin.Context) {
	chat, err := h.chatService.PinMessage(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("messageId"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to pin message")
		return
	}

	utils.SuccessResponse(c, chat)
}

func (h *ChatHandler) UnpinMessage(c *gin.Context) {
	chat, err := h.chatService.UnpinMessage(c.Request.Context(), middleware.UserID(c), c.Param("id"), c.Param("messageId"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to unpin message")
		return
	}

	utils.SuccessResponse(c, chat)
}

// Messages

// GetMessages returns the caller's view of a chat history, oldest first.
// ?before and ?limit page backwards.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	var q services.MessagesQuery
	if !bindQuery(c, &q) {
		return
	}

	messages, err := h.chatService.Messages(c.Request.Context(), middleware.UserID(c), c.Param("id"), q)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load messages")
		return
	}

	utils.SuccessResponseWithMeta(c, messages, &utils.Meta{Limit: q.Limit, Total: len(messages)})
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req services.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chatService.Send(c.Request.Context(), middleware.UserID(c), c.Param("id"), req)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to send message")
		return
	}

	created(c, "Message sent", msg)
}

func (h *ChatHandler) ToggleStar(c *gin.Context) {
	msg, err := h.chatService.ToggleStar(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to star message")
		return
	}

	utils.SuccessResponse(c, msg)
}

func (h *ChatHandler) DeleteForMe(c *gin.Context) {
	if err := h.chatService.DeleteForMe(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		utils.HandleServiceError(c, err, "Failed to delete message")
		return
	}

	utils.SuccessResponseWithMessage(c, "Message deleted", nil)
}

func (h *ChatHandler) DeleteForEveryone(c *gin.Context) {
	msg, err := h.chatService.DeleteForEveryone(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to delete message")
		return
	}

	utils.SuccessResponseWithMessage(c, "Message deleted for everyone", msg)
}

func (h *ChatHandler) Forward(c *gin.Context) {
	var req forwardRequest
	if !bindJSON(c, &req) {
		return
	}

	messages, err := h.chatService.Forward(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.ChatIDs)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to forward message")
		return
	}

	created(c, "Message forwarded", messages)
}

// Locate tells the client which chat holds a message and where it sits so
// the UI can scroll to it.
func (h *ChatHandler) Locate(c *gin.Context) {
	loc, err := h.chatService.Locate(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to locate message")
		return
	}

	utils.SuccessResponse(c, loc)
}
