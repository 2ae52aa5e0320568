package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tuan304201/chat/internal/config"
	"github.com/tuan304201/chat/internal/repository"
	"github.com/tuan304201/chat/pkg/logger"
)

// RateLimitService gates inbound traffic with fixed window counters kept
// in shared storage, so restarts do not reset limits for live clients.
type RateLimitService interface {
	// AllowEvent admits or rejects one inbound socket event for a
	// connection, returning a retry-after hint on rejection.
	AllowEvent(ctx context.Context, connID string) (allowed bool, retryAfter time.Duration, err error)
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	cfg           config.ChatConfig
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, cfg config.ChatConfig, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		cfg:           cfg,
		log:           log,
	}
}

func (s *rateLimitService) AllowEvent(ctx context.Context, connID string) (bool, time.Duration, error) {
	window := s.cfg.SocketRateWindow
	bucket := time.Now().UnixMilli() / window.Milliseconds()
	key := fmt.Sprintf("rl:conn:%s:%d", connID, bucket)

	count, err := s.rateLimitRepo.Increment(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	if count > int64(s.cfg.SocketRateLimit) {
		return false, window, nil
	}
	return true, 0, nil
}

func (s *rateLimitService) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.rateLimitRepo.CheckLimit(ctx, key, limit, window)
}

func (s *rateLimitService) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	return s.rateLimitRepo.Increment(ctx, key, window)
}
