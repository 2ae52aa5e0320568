package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/service"
	"github.com/tuan304201/chat/internal/socket"
	"github.com/tuan304201/chat/pkg/logger"
)

type ConversationHandler struct {
	convService service.ConversationService
	fanout      *socket.Fanout
	log         logger.Logger
}

func NewConversationHandler(convService service.ConversationService, fanout *socket.Fanout, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		convService: convService,
		fanout:      fanout,
		log:         log,
	}
}

type CreatePrivateRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

func (h *ConversationHandler) CreatePrivate(c *gin.Context) {
	actor := currentActor(c)
	var req CreatePrivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.convService.CreatePrivate(c.Request.Context(), actor.ID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

type CreateGroupRequest struct {
	Title     string      `json:"title" binding:"required"`
	MemberIDs []uuid.UUID `json:"member_ids" binding:"required"`
	Avatar    *string     `json:"avatar,omitempty"`
}

func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	actor := currentActor(c)
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.convService.CreateGroup(c.Request.Context(), actor, req.Title, req.MemberIDs, req.Avatar)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MembershipChanged(c.Request.Context(), res.Conversation, res.Message)
	c.JSON(http.StatusCreated, res.Conversation)
}

func (h *ConversationHandler) List(c *gin.Context) {
	actor := currentActor(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))

	entries, err := h.convService.ListForUser(c.Request.Context(), actor.ID, limit, skip)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (h *ConversationHandler) GetByID(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	view, err := h.convService.GetByID(c.Request.Context(), convID, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

type JoinByInviteRequest struct {
	InviteCode string `json:"invite_code" binding:"required"`
}

func (h *ConversationHandler) JoinByInvite(c *gin.Context) {
	actor := currentActor(c)
	var req JoinByInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.convService.JoinByInvite(c.Request.Context(), req.InviteCode, actor)
	if err != nil {
		respondError(c, err)
		return
	}

	if res.IsNew {
		h.fanout.MembershipChanged(c.Request.Context(), res.Conversation, res.Message)
	}
	c.JSON(http.StatusOK, gin.H{"conversation": res.Conversation, "is_new": res.IsNew})
}

type AddMembersRequest struct {
	MemberIDs []uuid.UUID `json:"member_ids" binding:"required"`
}

func (h *ConversationHandler) AddMembers(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	var req AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.convService.AddMembers(c.Request.Context(), actor, convID, req.MemberIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MembershipChanged(c.Request.Context(), res.Conversation, res.Message)
	c.JSON(http.StatusOK, res.Conversation)
}

func (h *ConversationHandler) KickMember(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}
	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	res, err := h.convService.KickMember(c.Request.Context(), actor, convID, targetID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MemberKicked(c.Request.Context(), res.Conversation, res.Message, res.TargetID)
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

func (h *ConversationHandler) Leave(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	res, err := h.convService.LeaveGroup(c.Request.Context(), actor, convID)
	if err != nil {
		respondError(c, err)
		return
	}

	if res.Disbanded {
		h.fanout.Disbanded(c.Request.Context(), res.Conversation)
	} else {
		h.fanout.MembershipChanged(c.Request.Context(), res.Conversation, res.Message)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left group", "disbanded": res.Disbanded})
}

func (h *ConversationHandler) Disband(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	res, err := h.convService.DisbandGroup(c.Request.Context(), actor, convID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.Disbanded(c.Request.Context(), res.Conversation)
	c.JSON(http.StatusOK, gin.H{"message": "Group disbanded"})
}

type UpdateRoleRequest struct {
	Role domain.MemberRole `json:"role" binding:"required"`
}

func (h *ConversationHandler) UpdateMemberRole(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}
	targetID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.convService.UpdateMemberRole(c.Request.Context(), actor, convID, targetID, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MembershipChanged(c.Request.Context(), res.Conversation, res.Message)
	c.JSON(http.StatusOK, res.Conversation)
}

type UpdateGroupInfoRequest struct {
	Title  *string `json:"title,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

func (h *ConversationHandler) UpdateInfo(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	var req UpdateGroupInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.convService.UpdateGroupInfo(c.Request.Context(), actor, convID, req.Title, req.Avatar)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MembershipChanged(c.Request.Context(), conv, nil)
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) TogglePin(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	pinned, err := h.convService.TogglePin(c.Request.Context(), actor.ID, convID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"is_pinned": pinned})
}

type MuteRequest struct {
	Minutes int `json:"minutes"`
}

func (h *ConversationHandler) Mute(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	var req MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	muteUntil, err := h.convService.Mute(c.Request.Context(), actor.ID, convID, req.Minutes)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"mute_until": muteUntil})
}

// DeleteForUser clears the conversation history for the caller only.
func (h *ConversationHandler) DeleteForUser(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	if err := h.convService.DeleteForUser(c.Request.Context(), actor.ID, convID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation history cleared"})
}
