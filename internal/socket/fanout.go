package socket

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/service"
	"github.com/tuan304201/chat/pkg/logger"
)

// Fanout translates engine outcomes into room broadcasts and personal
// channel pushes. It is the only place that decides which rooms hear
// about which state change.
type Fanout struct {
	hub      *Hub
	presence service.PresenceService
	log      logger.Logger
}

func NewFanout(hub *Hub, presence service.PresenceService, log logger.Logger) *Fanout {
	return &Fanout{hub: hub, presence: presence, log: log}
}

func (f *Fanout) broadcast(ctx context.Context, room Room, event string, payload interface{}, excludeConn string) {
	if err := f.hub.Broadcast(ctx, room, event, payload, excludeConn); err != nil {
		f.log.Error("Broadcast failed", "room", room.String(), "event", event, "error", err)
	}
}

// notifyMembers pushes event to the personal channel of every active
// member, reaching connections that have not joined the room yet.
func (f *Fanout) notifyMembers(ctx context.Context, conv *domain.Conversation, event string, payload interface{}) {
	for _, m := range conv.ActiveMembers() {
		f.broadcast(ctx, UserRoom(m.UserID), event, payload, "")
	}
}

func (f *Fanout) MessageNew(ctx context.Context, conv *domain.Conversation, msg *domain.Message) {
	f.broadcast(ctx, ConversationRoom(conv.ID), EventMessageNew, messageRoomEvent{
		ConversationID: conv.ID,
		Message:        msg,
	}, "")
	f.notifyMembers(ctx, conv, EventConversationUpdate, conversationEvent{ConversationID: conv.ID})
}

func (f *Fanout) MessageUpdated(ctx context.Context, msg *domain.Message) {
	f.broadcast(ctx, ConversationRoom(msg.ConversationID), EventMessageUpdated, messageRoomEvent{
		ConversationID: msg.ConversationID,
		Message:        msg,
	}, "")
}

// MessageDeletedFor syncs a delete-for-me across the actor's own
// devices. Nothing is pushed to other members.
func (f *Fanout) MessageDeletedFor(ctx context.Context, userID uuid.UUID, msg *domain.Message) {
	f.broadcast(ctx, UserRoom(userID), EventMessageDeleted, messageDeletedEvent{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		UserID:         userID,
	}, "")
}

func (f *Fanout) MessageRecalled(ctx context.Context, conv *domain.Conversation, msg *domain.Message) {
	f.broadcast(ctx, ConversationRoom(conv.ID), EventMessageRecalled, messageRecalledEvent{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
	}, "")
	f.notifyMembers(ctx, conv, EventConversationRecallNotify, conversationEvent{ConversationID: conv.ID})
}

func (f *Fanout) ReactionUpdated(ctx context.Context, res *service.ReactResult) {
	f.broadcast(ctx, ConversationRoom(res.Conversation.ID), EventMessageReactionUpdated, messageRoomEvent{
		ConversationID: res.Conversation.ID,
		Message:        res.Message,
	}, "")
	if res.ShouldNotify {
		f.notifyMembers(ctx, res.Conversation, EventConversationReactionNotify, conversationEvent{ConversationID: res.Conversation.ID})
	}
}

func (f *Fanout) SeenUpdate(ctx context.Context, convID, userID, messageID uuid.UUID) {
	f.broadcast(ctx, ConversationRoom(convID), EventSeenUpdate, seenUpdateEvent{
		ConversationID: convID,
		UserID:         userID,
		MessageID:      messageID,
	}, "")
}

func (f *Fanout) Typing(ctx context.Context, convID uuid.UUID, actor domain.Actor, isTyping bool, excludeConn string) {
	f.broadcast(ctx, ConversationRoom(convID), EventTyping, typingEvent{
		ConversationID: convID,
		UserID:         actor.ID,
		DisplayName:    actor.Name(),
		IsTyping:       isTyping,
	}, excludeConn)
}

// MembershipChanged covers creates, joins, adds, role changes and info
// edits: the room gets the system message, every active member gets a
// group:update so closed lists refresh.
func (f *Fanout) MembershipChanged(ctx context.Context, conv *domain.Conversation, msg *domain.Message) {
	if msg != nil {
		f.broadcast(ctx, ConversationRoom(conv.ID), EventMessageNew, messageRoomEvent{
			ConversationID: conv.ID,
			Message:        msg,
		}, "")
	}
	f.notifyMembers(ctx, conv, EventGroupUpdate, conversationEvent{
		ConversationID: conv.ID,
		Conversation:   conv,
	})
}

// MemberKicked tells the target they are out, then evicts each of
// their live connections from the room fleet-wide.
func (f *Fanout) MemberKicked(ctx context.Context, conv *domain.Conversation, msg *domain.Message, targetID uuid.UUID) {
	f.MembershipChanged(ctx, conv, msg)
	f.broadcast(ctx, UserRoom(targetID), EventMemberKicked, memberKickedEvent{
		ConversationID: conv.ID,
		UserID:         targetID,
	}, "")

	connIDs, err := f.presence.Connections(ctx, targetID)
	if err != nil {
		f.log.Error("Failed to resolve connections for eviction", "user_id", targetID, "error", err)
		return
	}
	if err := f.hub.Evict(ctx, ConversationRoom(conv.ID), connIDs); err != nil {
		f.log.Error("Eviction broadcast failed", "conversation_id", conv.ID, "error", err)
	}
}

func (f *Fanout) Disbanded(ctx context.Context, conv *domain.Conversation) {
	f.broadcast(ctx, ConversationRoom(conv.ID), EventConversationDisbanded, conversationEvent{ConversationID: conv.ID}, "")
	f.notifyMembers(ctx, conv, EventConversationDisbanded, conversationEvent{ConversationID: conv.ID})
}

func (f *Fanout) UserOnline(ctx context.Context, userID uuid.UUID) {
	f.broadcast(ctx, Room{}, EventUserOnline, presenceEvent{UserID: userID, Online: true}, "")
}

func (f *Fanout) UserOffline(ctx context.Context, userID uuid.UUID, lastSeen time.Time) {
	f.broadcast(ctx, Room{}, EventUserOffline, presenceEvent{
		UserID:   userID,
		Online:   false,
		LastSeen: &lastSeen,
	}, "")
}

func (f *Fanout) FriendEvent(ctx context.Context, userID uuid.UUID, event string, payload interface{}) {
	f.broadcast(ctx, UserRoom(userID), event, payload, "")
}
