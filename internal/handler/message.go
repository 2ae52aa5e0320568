package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/service"
	"github.com/tuan304201/chat/internal/socket"
	apperrors "github.com/tuan304201/chat/pkg/errors"
	"github.com/tuan304201/chat/pkg/logger"
)

// MessageHandler is the REST mirror of the socket message events. Both
// surfaces run the same services and fan out the same broadcasts, so a
// client on a flaky websocket can fall back to HTTP without divergence.
type MessageHandler struct {
	msgService service.MessageService
	fanout     *socket.Fanout
	log        logger.Logger
}

func NewMessageHandler(msgService service.MessageService, fanout *socket.Fanout, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		msgService: msgService,
		fanout:     fanout,
		log:        log,
	}
}

type SendMessageRequest struct {
	Type      string     `json:"type" binding:"required"`
	Content   string     `json:"content" binding:"required"`
	ReplyToID *uuid.UUID `json:"reply_to_id"`
	Duration  *float64   `json:"duration"`
	Size      *int64     `json:"size"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type ReactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// List pages conversation history backwards from a cursor. Messages the
// caller recalled stay in the page; messages they deleted for
// themselves and anything outside their membership window do not.
func (h *MessageHandler) List(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	var cursor *uuid.UUID
	if raw := c.Query("before"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		cursor = &id
	}

	messages, err := h.msgService.List(c.Request.Context(), convID, actor.ID, limit, cursor)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

func (h *MessageHandler) Send(c *gin.Context) {
	actor := currentActor(c)
	convID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := service.SendInput{
		ConversationID: convID,
		SenderID:       actor.ID,
		Type:           domain.MessageType(req.Type),
		ReplyToID:      req.ReplyToID,
		Metadata:       domain.MessageMetadata{Duration: req.Duration, Size: req.Size},
	}
	switch in.Type {
	case domain.MessageText:
		in.Text = &req.Content
	case domain.MessageImage, domain.MessageFile, domain.MessageAudio:
		in.FileURL = &req.Content
	default:
		respondError(c, apperrors.InvalidArgument("unsupported message type"))
		return
	}

	res, err := h.msgService.Send(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MessageNew(c.Request.Context(), res.Conversation, res.Message)
	c.JSON(http.StatusCreated, res.Message)
}

func (h *MessageHandler) Edit(c *gin.Context) {
	actor := currentActor(c)
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.msgService.Edit(c.Request.Context(), messageID, actor.ID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MessageUpdated(c.Request.Context(), msg)
	c.JSON(http.StatusOK, msg)
}

// Delete hides the message for the caller only.
func (h *MessageHandler) Delete(c *gin.Context) {
	actor := currentActor(c)
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	msg, err := h.msgService.DeleteForUser(c.Request.Context(), messageID, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MessageDeletedFor(c.Request.Context(), actor.ID, msg)
	c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}

func (h *MessageHandler) Recall(c *gin.Context) {
	actor := currentActor(c)
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	res, err := h.msgService.Recall(c.Request.Context(), messageID, actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.MessageRecalled(c.Request.Context(), res.Conversation, res.Message)
	c.JSON(http.StatusOK, res.Message)
}

func (h *MessageHandler) React(c *gin.Context) {
	actor := currentActor(c)
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	var req ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.msgService.React(c.Request.Context(), messageID, actor.ID, req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}

	h.fanout.ReactionUpdated(c.Request.Context(), res)
	c.JSON(http.StatusOK, res.Message)
}
