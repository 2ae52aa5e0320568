package socket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Inbound event names accepted from clients.
const (
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
	EventMessageSend       = "message:send"
	EventMessageEdit       = "message:edit"
	EventMessageDelete     = "message:delete"
	EventMessageRecall     = "message:recall"
	EventMessageReact      = "message:react"
	EventMessageSeen       = "message:seen"
	// typing is the one name used in both directions.
	EventTyping = "typing"
	EventPresenceCheck     = "presence:check"
)

// Outbound event names pushed to rooms and personal channels.
const (
	EventMessageNew             = "message:new"
	EventMessageUpdated         = "message:updated"
	EventMessageDeleted         = "message:deleted"
	EventMessageRecalled        = "message:recalled"
	EventMessageReactionUpdated = "message:reaction_updated"
	EventSeenUpdate             = "seen:update"

	EventConversationUpdate         = "conversation:update"
	EventConversationRecallNotify   = "conversation:recall_notify"
	EventConversationReactionNotify = "conversation:reaction_notify"
	EventConversationDisbanded      = "conversation:disbanded"
	EventGroupUpdate                = "group:update"
	EventMemberKicked               = "member:kicked"

	EventUserOnline  = "user:online"
	EventUserOffline = "user:offline"

	EventFriendNewRequest      = "friend:new_request"
	EventFriendRequestSent     = "friend:request_sent"
	EventFriendRequestAccepted = "friend:request_accepted"
	EventFriendRequestDeclined = "friend:request_declined"
	EventFriendRequestCanceled = "friend:request_canceled"
	EventFriendUnfriended      = "friend:unfriended"

	eventAck = "ack"
)

// Frame is the wire unit of the websocket protocol. Clients that want a
// reply set AckID; the server answers with an "ack" frame carrying the
// same id.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID *int64          `json:"ack_id,omitempty"`
}

type ackBody struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Inbound payloads.

type roomPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type sendMessagePayload struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	Type           string     `json:"type"`
	Content        string     `json:"content"`
	ReplyToID      *uuid.UUID `json:"reply_to_id,omitempty"`
	Duration       *float64   `json:"duration,omitempty"`
	Size           *int64     `json:"size,omitempty"`
}

type editMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type messageRefPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type reactPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

type seenPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

type typingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	IsTyping       bool      `json:"is_typing"`
}

type presenceCheckPayload struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

// Outbound payloads.

type messageRoomEvent struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	Message        interface{} `json:"message"`
}

type messageRecalledEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

type messageDeletedEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type seenUpdateEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

type typingEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	IsTyping       bool      `json:"is_typing"`
}

type presenceEvent struct {
	UserID   uuid.UUID  `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type memberKickedEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type conversationEvent struct {
	ConversationID uuid.UUID   `json:"conversation_id"`
	Conversation   interface{} `json:"conversation,omitempty"`
}
