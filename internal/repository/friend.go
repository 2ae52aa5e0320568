package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuan304201/chat/internal/domain"
	apperrors "github.com/tuan304201/chat/pkg/errors"
	"github.com/tuan304201/chat/pkg/logger"
)

type FriendRepository interface {
	CreateRequest(ctx context.Context, req *domain.FriendRequest) error
	GetRequestByID(ctx context.Context, id uuid.UUID) (*domain.FriendRequest, error)
	GetRequestByPair(ctx context.Context, fromID, toID uuid.UUID) (*domain.FriendRequest, error)
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, status domain.FriendRequestStatus) error
	DeleteRequest(ctx context.Context, id uuid.UUID) error
	ListPendingRequests(ctx context.Context, userID uuid.UUID) (incoming, outgoing []*domain.FriendRequest, err error)

	CreateFriendship(ctx context.Context, userA, userB uuid.UUID) error
	DeleteFriendship(ctx context.Context, userA, userB uuid.UUID) error
	AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error)
}

type friendRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewFriendRepository(db *pgxpool.Pool, log logger.Logger) FriendRepository {
	return &friendRepository{db: db, log: log}
}

const friendRequestColumns = `id, from_id, to_id, status, created_at, updated_at`

func (r *friendRepository) CreateRequest(ctx context.Context, req *domain.FriendRequest) error {
	query := `
		INSERT INTO friend_requests (id, from_id, to_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, req.ID, req.FromID, req.ToID, req.Status, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		r.log.Error("Failed to create friend request", "error", err)
		return err
	}
	return nil
}

func (r *friendRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*domain.FriendRequest, error) {
	query := `SELECT ` + friendRequestColumns + ` FROM friend_requests WHERE id = $1`
	return r.scanRequest(r.db.QueryRow(ctx, query, id))
}

func (r *friendRepository) GetRequestByPair(ctx context.Context, fromID, toID uuid.UUID) (*domain.FriendRequest, error) {
	query := `SELECT ` + friendRequestColumns + ` FROM friend_requests WHERE from_id = $1 AND to_id = $2`
	return r.scanRequest(r.db.QueryRow(ctx, query, fromID, toID))
}

func (r *friendRepository) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status domain.FriendRequestStatus) error {
	query := `UPDATE friend_requests SET status = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, status, time.Now())
	if err != nil {
		r.log.Error("Failed to update friend request", "error", err)
	}
	return err
}

func (r *friendRepository) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM friend_requests WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.Error("Failed to delete friend request", "error", err)
	}
	return err
}

func (r *friendRepository) ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, []*domain.FriendRequest, error) {
	query := `
		SELECT ` + friendRequestColumns + `
		FROM friend_requests
		WHERE (to_id = $1 OR from_id = $1) AND status = 'pending'
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list friend requests", "error", err)
		return nil, nil, err
	}
	defer rows.Close()

	var incoming, outgoing []*domain.FriendRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, nil, err
		}
		if req.ToID == userID {
			incoming = append(incoming, req)
		} else {
			outgoing = append(outgoing, req)
		}
	}
	return incoming, outgoing, rows.Err()
}

// CreateFriendship inserts both directions in one transaction so a mutual
// relation never exists half-written.
func (r *friendRepository) CreateFriendship(ctx context.Context, userA, userB uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO friendships (user_id, friend_id, created_at) VALUES ($1, $2, $3)`
	now := time.Now()
	if _, err := tx.Exec(ctx, query, userA, userB, now); err != nil {
		r.log.Error("Failed to create friendship", "error", err)
		return err
	}
	if _, err := tx.Exec(ctx, query, userB, userA, now); err != nil {
		r.log.Error("Failed to create friendship", "error", err)
		return err
	}

	return tx.Commit(ctx)
}

func (r *friendRepository) DeleteFriendship(ctx context.Context, userA, userB uuid.UUID) error {
	query := `
		DELETE FROM friendships
		WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
	`
	_, err := r.db.Exec(ctx, query, userA, userB)
	if err != nil {
		r.log.Error("Failed to delete friendship", "error", err)
	}
	return err
}

func (r *friendRepository) AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userA, userB).Scan(&exists); err != nil {
		r.log.Error("Failed to check friendship", "error", err)
		return false, err
	}
	return exists, nil
}

func (r *friendRepository) scanRequest(row pgx.Row) (*domain.FriendRequest, error) {
	req := &domain.FriendRequest{}
	err := row.Scan(&req.ID, &req.FromID, &req.ToID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("friend request not found")
		}
		r.log.Error("Failed to scan friend request", "error", err)
		return nil, err
	}
	return req, nil
}
