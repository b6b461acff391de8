package handlers

import (
	"campuschat/internal/middleware"
	"campuschat/internal/models"
	"campuschat/internal/services"
	"campuschat/internal/utils"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	callService *services.CallService
}

func NewCallHandler(callService *services.CallService) *CallHandler {
	return &CallHandler{
		callService: callService,
	}
}

type descriptionRequest struct {
	SDP string `json:"sdp" binding:"required"`
}

type candidateRequest struct {
	Candidate     string  `json:"candidate" binding:"required"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *int    `json:"sdpMLineIndex"`
}

type endRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=40"`
}

// StartCall opens a call in the dialing state. The caller then posts its
// offer.
func (h *CallHandler) StartCall(c *gin.Context) {
	var req services.StartCallRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.callService.Start(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to start call")
		return
	}

	created(c, "Call started", view)
}

func (h *CallHandler) GetCall(c *gin.Context) {
	view, err := h.callService.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to load call")
		return
	}

	utils.SuccessResponse(c, view)
}

func (h *CallHandler) History(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 50)
	if !ok {
		return
	}

	calls, err := h.callService.History(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to get call history")
		return
	}

	utils.SuccessResponseWithMeta(c, calls, &utils.Meta{Limit: limit, Total: len(calls)})
}

func (h *CallHandler) SetOffer(c *gin.Context) {
	var req descriptionRequest
	if !bindJSON(c, &req) {
		return
	}

	offer := models.SessionDescription{Type: "offer", SDP: req.SDP}
	view, err := h.callService.SetOffer(c.Request.Context(), middleware.UserID(c), c.Param("id"), offer)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to send offer")
		return
	}

	utils.SuccessResponse(c, view)
}

func (h *CallHandler) Answer(c *gin.Context) {
	var req descriptionRequest
	if !bindJSON(c, &req) {
		return
	}

	answer := models.SessionDescription{Type: "answer", SDP: req.SDP}
	view, err := h.callService.Answer(c.Request.Context(), middleware.UserID(c), c.Param("id"), answer)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to answer call")
		return
	}

	utils.SuccessResponse(c, view)
}

func (h *CallHandler) AddCandidate(c *gin.Context) {
	var req candidateRequest
	if !bindJSON(c, &req) {
		return
	}

	cand := models.ICECandidate{Candidate: req.Candidate, SDPMid: req.SDPMid, SDPMLineIndex: req.SDPMLineIndex}
	view, err := h.callService.AddCandidate(c.Request.Context(), middleware.UserID(c), c.Param("id"), cand)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to add ICE candidate")
		return
	}

	utils.SuccessResponse(c, view)
}

func (h *CallHandler) EndCall(c *gin.Context) {
	var req endRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	view, err := h.callService.End(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Reason)
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to end call")
		return
	}

	utils.SuccessResponseWithMessage(c, "Call ended", view)
}

func (h *CallHandler) RejectCall(c *gin.Context) {
	view, err := h.callService.Reject(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		utils.HandleServiceError(c, err, "Failed to reject call")
		return
	}

	utils.SuccessResponseWithMessage(c, "Call rejected", view)
}

// GetICEServers returns STUN servers and TURN servers with short-lived
// credentials for the caller.
func (h *CallHandler) GetICEServers(c *gin.Context) {
	servers := h.callService.ICEServers(middleware.UserID(c))
	utils.SuccessResponse(c, gin.H{"ice_servers": servers})
}
