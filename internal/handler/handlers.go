package handler

import (
	"github.com/tuan304201/chat/internal/config"
	"github.com/tuan304201/chat/internal/service"
	"github.com/tuan304201/chat/internal/socket"
	"github.com/tuan304201/chat/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Conversation *ConversationHandler
	Message      *MessageHandler
	Friend       *FriendHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(services *service.Services, socketServer *socket.Server, fanout *socket.Fanout, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(cfg),
		Conversation: NewConversationHandler(services.Conversation, fanout, log),
		Message:      NewMessageHandler(services.Message, fanout, log),
		Friend:       NewFriendHandler(services.Friend, fanout, log),
		WebSocket:    NewWebSocketHandler(services.Auth, socketServer, log),
	}
}
