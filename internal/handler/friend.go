package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/service"
	"github.com/tuan304201/chat/internal/socket"
	"github.com/tuan304201/chat/pkg/logger"
)

type FriendHandler struct {
	friendService service.FriendService
	fanout        *socket.Fanout
	log           logger.Logger
}

func NewFriendHandler(friendService service.FriendService, fanout *socket.Fanout, log logger.Logger) *FriendHandler {
	return &FriendHandler{
		friendService: friendService,
		fanout:        fanout,
		log:           log,
	}
}

type SendFriendRequestRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

func (h *FriendHandler) SendRequest(c *gin.Context) {
	actor := currentActor(c)
	var req SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fr, err := h.friendService.SendRequest(c.Request.Context(), actor.ID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.FriendEvent(c.Request.Context(), fr.ToID, socket.EventFriendNewRequest, fr)
	// The sender's other devices learn about the outgoing request too.
	h.fanout.FriendEvent(c.Request.Context(), fr.FromID, socket.EventFriendRequestSent, fr)
	c.JSON(http.StatusCreated, fr)
}

func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	actor := currentActor(c)
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	fr, err := h.friendService.AcceptRequest(c.Request.Context(), requestID, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.FriendEvent(c.Request.Context(), fr.FromID, socket.EventFriendRequestAccepted, fr)
	c.JSON(http.StatusOK, fr)
}

func (h *FriendHandler) DeclineRequest(c *gin.Context) {
	actor := currentActor(c)
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	fr, err := h.friendService.DeclineRequest(c.Request.Context(), requestID, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.FriendEvent(c.Request.Context(), fr.FromID, socket.EventFriendRequestDeclined, fr)
	c.JSON(http.StatusOK, fr)
}

func (h *FriendHandler) CancelRequest(c *gin.Context) {
	actor := currentActor(c)
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request ID"})
		return
	}

	fr, err := h.friendService.CancelRequest(c.Request.Context(), requestID, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.FriendEvent(c.Request.Context(), fr.ToID, socket.EventFriendRequestCanceled, fr)
	c.JSON(http.StatusOK, gin.H{"message": "Request canceled"})
}

func (h *FriendHandler) ListRequests(c *gin.Context) {
	actor := currentActor(c)

	incoming, outgoing, err := h.friendService.ListRequests(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"incoming": incoming, "outgoing": outgoing})
}

func (h *FriendHandler) RemoveFriend(c *gin.Context) {
	actor := currentActor(c)
	friendID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	if err := h.friendService.RemoveFriend(c.Request.Context(), actor.ID, friendID); err != nil {
		respondError(c, err)
		return
	}

	h.fanout.FriendEvent(c.Request.Context(), friendID, socket.EventFriendUnfriended, gin.H{"user_id": actor.ID})
	c.JSON(http.StatusOK, gin.H{"message": "Friend removed"})
}
