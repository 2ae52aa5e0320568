package service

import (
	"github.com/tuan304201/chat/internal/config"
	"github.com/tuan304201/chat/internal/repository"
	"github.com/tuan304201/chat/pkg/logger"
)

type Services struct {
	Auth         AuthService
	Conversation ConversationService
	Message      MessageService
	Friend       FriendService
	Presence     PresenceService
	RateLimit    RateLimitService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, log logger.Logger) *Services {
	return &Services{
		Auth:         NewAuthService(cfg.JWT, log),
		Conversation: NewConversationService(repos.Conversation, repos.Message, cfg.Chat, log),
		Message:      NewMessageService(repos.Message, repos.Conversation, repos.Friend, cfg.Chat, log),
		Friend:       NewFriendService(repos.Friend, log),
		Presence:     NewPresenceService(repos.Presence, log),
		RateLimit:    NewRateLimitService(repos.RateLimit, cfg.Chat, log),
	}
}
