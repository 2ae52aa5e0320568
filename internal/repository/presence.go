package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/pkg/logger"
)

const (
	userSocketsKeyPrefix  = "user_sockets:%s"
	userOnlineKeyPrefix   = "user_online:%s"
	userLastSeenKeyPrefix = "user_lastseen:%s"
)

// PresenceRepository tracks live connection ids per user in Redis so every
// process in the fleet shares one view. Set operations are atomic; the
// remove+card pair runs in a MULTI/EXEC so the "last connection" check
// cannot lose an update to a concurrent disconnect.
type PresenceRepository interface {
	AddConnection(ctx context.Context, userID uuid.UUID, connID string) error
	RemoveConnection(ctx context.Context, userID uuid.UUID, connID string) (remaining int64, err error)
	MarkOffline(ctx context.Context, userID uuid.UUID, at time.Time) error
	GetConnections(ctx context.Context, userID uuid.UUID) ([]string, error)
	Check(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.Presence, error)
}

type presenceRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewPresenceRepository(rdb *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{rdb: rdb, log: log}
}

func socketsKey(userID uuid.UUID) string  { return fmt.Sprintf(userSocketsKeyPrefix, userID) }
func onlineKey(userID uuid.UUID) string   { return fmt.Sprintf(userOnlineKeyPrefix, userID) }
func lastSeenKey(userID uuid.UUID) string { return fmt.Sprintf(userLastSeenKeyPrefix, userID) }

func (r *presenceRepository) AddConnection(ctx context.Context, userID uuid.UUID, connID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, socketsKey(userID), connID)
		pipe.Set(ctx, onlineKey(userID), "1", 0)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to register connection", "error", err, "user_id", userID)
	}
	return err
}

func (r *presenceRepository) RemoveConnection(ctx context.Context, userID uuid.UUID, connID string) (int64, error) {
	var card *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, socketsKey(userID), connID)
		card = pipe.SCard(ctx, socketsKey(userID))
		return nil
	})
	if err != nil {
		r.log.Error("Failed to remove connection", "error", err, "user_id", userID)
		return 0, err
	}
	return card.Val(), nil
}

func (r *presenceRepository) MarkOffline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, onlineKey(userID))
		pipe.Set(ctx, lastSeenKey(userID), strconv.FormatInt(at.UnixMilli(), 10), 0)
		return nil
	})
	if err != nil {
		r.log.Error("Failed to mark offline", "error", err, "user_id", userID)
	}
	return err
}

func (r *presenceRepository) GetConnections(ctx context.Context, userID uuid.UUID) ([]string, error) {
	conns, err := r.rdb.SMembers(ctx, socketsKey(userID)).Result()
	if err != nil {
		r.log.Error("Failed to get connections", "error", err, "user_id", userID)
		return nil, err
	}
	return conns, nil
}

func (r *presenceRepository) Check(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.Presence, error) {
	pipe := r.rdb.Pipeline()
	onlineCmds := make([]*redis.StringCmd, len(userIDs))
	lastSeenCmds := make([]*redis.StringCmd, len(userIDs))
	for i, id := range userIDs {
		onlineCmds[i] = pipe.Get(ctx, onlineKey(id))
		lastSeenCmds[i] = pipe.Get(ctx, lastSeenKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		r.log.Error("Failed to check presence", "error", err)
		return nil, err
	}

	result := make(map[uuid.UUID]domain.Presence, len(userIDs))
	for i, id := range userIDs {
		p := domain.Presence{Online: onlineCmds[i].Err() == nil}
		if raw, err := lastSeenCmds[i].Result(); err == nil {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				ts := time.UnixMilli(ms)
				p.LastSeen = &ts
			}
		}
		result[id] = p
	}
	return result, nil
}
