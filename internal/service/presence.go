package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/repository"
	"github.com/tuan304201/chat/pkg/logger"
)

// PresenceService derives online/offline transitions from the shared
// connection set. The offline transition fires only when the last
// connection drops; a reconnect racing the check yields at worst a
// spurious offline+online pair, never a missed offline.
type PresenceService interface {
	Connect(ctx context.Context, userID uuid.UUID, connID string) error
	Disconnect(ctx context.Context, userID uuid.UUID, connID string) (*OfflineTransition, error)
	Check(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.Presence, error)
	Connections(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// OfflineTransition is non-nil when a disconnect took the user's last
// connection down.
type OfflineTransition struct {
	LastSeen time.Time
}

type presenceService struct {
	presenceRepo repository.PresenceRepository
	log          logger.Logger
}

func NewPresenceService(presenceRepo repository.PresenceRepository, log logger.Logger) PresenceService {
	return &presenceService{presenceRepo: presenceRepo, log: log}
}

func (s *presenceService) Connect(ctx context.Context, userID uuid.UUID, connID string) error {
	return s.presenceRepo.AddConnection(ctx, userID, connID)
}

func (s *presenceService) Disconnect(ctx context.Context, userID uuid.UUID, connID string) (*OfflineTransition, error) {
	remaining, err := s.presenceRepo.RemoveConnection(ctx, userID, connID)
	if err != nil {
		return nil, err
	}
	if remaining > 0 {
		return nil, nil
	}

	lastSeen := time.Now()
	if err := s.presenceRepo.MarkOffline(ctx, userID, lastSeen); err != nil {
		return nil, err
	}
	return &OfflineTransition{LastSeen: lastSeen}, nil
}

func (s *presenceService) Check(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.Presence, error) {
	return s.presenceRepo.Check(ctx, userIDs)
}

func (s *presenceService) Connections(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return s.presenceRepo.GetConnections(ctx, userID)
}
