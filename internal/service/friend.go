package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/repository"
	apperrors "github.com/tuan304201/chat/pkg/errors"
	"github.com/tuan304201/chat/pkg/logger"
)

type FriendService interface {
	SendRequest(ctx context.Context, fromID, toID uuid.UUID) (*domain.FriendRequest, error)
	AcceptRequest(ctx context.Context, requestID, acceptorID uuid.UUID) (*domain.FriendRequest, error)
	DeclineRequest(ctx context.Context, requestID, declinerID uuid.UUID) (*domain.FriendRequest, error)
	CancelRequest(ctx context.Context, requestID, senderID uuid.UUID) (*domain.FriendRequest, error)
	ListRequests(ctx context.Context, userID uuid.UUID) (incoming, outgoing []*domain.FriendRequest, err error)
	RemoveFriend(ctx context.Context, userID, friendID uuid.UUID) error
	AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error)
}

type friendService struct {
	friendRepo repository.FriendRepository
	log        logger.Logger
}

func NewFriendService(friendRepo repository.FriendRepository, log logger.Logger) FriendService {
	return &friendService{friendRepo: friendRepo, log: log}
}

func (s *friendService) SendRequest(ctx context.Context, fromID, toID uuid.UUID) (*domain.FriendRequest, error) {
	if fromID == toID {
		return nil, apperrors.InvalidArgument("cannot send a friend request to yourself")
	}

	friends, err := s.friendRepo.AreFriends(ctx, fromID, toID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, apperrors.Conflict("already friends")
	}

	existing, err := s.friendRepo.GetRequestByPair(ctx, fromID, toID)
	if err != nil && !apperrors.Is(err, apperrors.CodeNotFound) {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case domain.FriendRequestPending:
			return nil, apperrors.Conflict("friend request already sent")
		case domain.FriendRequestDeclined:
			// A declined request may be re-sent.
			if err := s.friendRepo.UpdateRequestStatus(ctx, existing.ID, domain.FriendRequestPending); err != nil {
				return nil, err
			}
			existing.Status = domain.FriendRequestPending
			return existing, nil
		}
	}

	now := time.Now()
	req := &domain.FriendRequest{
		ID:        uuid.New(),
		FromID:    fromID,
		ToID:      toID,
		Status:    domain.FriendRequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.friendRepo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// AcceptRequest flips the request to accepted and writes the mutual
// relation. If the relation write fails the request status is reverted so
// the two stores never disagree.
func (s *friendService) AcceptRequest(ctx context.Context, requestID, acceptorID uuid.UUID) (*domain.FriendRequest, error) {
	req, err := s.friendRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ToID != acceptorID {
		return nil, apperrors.Forbidden("not authorized to accept this request")
	}
	if req.Status == domain.FriendRequestAccepted {
		return req, nil
	}

	if err := s.friendRepo.UpdateRequestStatus(ctx, req.ID, domain.FriendRequestAccepted); err != nil {
		return nil, err
	}
	req.Status = domain.FriendRequestAccepted

	if err := s.friendRepo.CreateFriendship(ctx, req.FromID, req.ToID); err != nil {
		s.log.Error("Failed to create friendship, reverting request", "error", err, "request_id", req.ID)
		if revertErr := s.friendRepo.UpdateRequestStatus(ctx, req.ID, domain.FriendRequestPending); revertErr != nil {
			s.log.Error("Failed to revert friend request status", "error", revertErr, "request_id", req.ID)
		}
		req.Status = domain.FriendRequestPending
		return nil, err
	}

	return req, nil
}

func (s *friendService) DeclineRequest(ctx context.Context, requestID, declinerID uuid.UUID) (*domain.FriendRequest, error) {
	req, err := s.friendRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ToID != declinerID {
		return nil, apperrors.Forbidden("not authorized to decline this request")
	}

	if err := s.friendRepo.UpdateRequestStatus(ctx, req.ID, domain.FriendRequestDeclined); err != nil {
		return nil, err
	}
	req.Status = domain.FriendRequestDeclined
	return req, nil
}

func (s *friendService) CancelRequest(ctx context.Context, requestID, senderID uuid.UUID) (*domain.FriendRequest, error) {
	req, err := s.friendRepo.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.FromID != senderID {
		return nil, apperrors.Forbidden("not authorized to cancel this request")
	}

	if err := s.friendRepo.DeleteRequest(ctx, req.ID); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *friendService) ListRequests(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, []*domain.FriendRequest, error) {
	return s.friendRepo.ListPendingRequests(ctx, userID)
}

func (s *friendService) RemoveFriend(ctx context.Context, userID, friendID uuid.UUID) error {
	return s.friendRepo.DeleteFriendship(ctx, userID, friendID)
}

func (s *friendService) AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	return s.friendRepo.AreFriends(ctx, userA, userB)
}
