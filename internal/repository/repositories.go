package repository

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tuan304201/chat/pkg/logger"
)

// uuidsOrEmpty keeps nil id slices out of INSERT parameters: pgx encodes
// a nil slice as SQL NULL, which the NOT NULL array columns reject.
func uuidsOrEmpty(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

type Repositories struct {
	Conversation ConversationRepository
	Message      MessageRepository
	Friend       FriendRepository
	Presence     PresenceRepository
	RateLimit    RateLimitRepository
}

func NewRepositories(db *pgxpool.Pool, rdb *redis.Client, log logger.Logger) *Repositories {
	return &Repositories{
		Conversation: NewConversationRepository(db, log),
		Message:      NewMessageRepository(db, log),
		Friend:       NewFriendRepository(db, log),
		Presence:     NewPresenceRepository(rdb, log),
		RateLimit:    NewRateLimitRepository(rdb, log),
	}
}
