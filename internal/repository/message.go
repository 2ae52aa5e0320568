package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tuan304201/chat/internal/domain"
	apperrors "github.com/tuan304201/chat/pkg/errors"
	"github.com/tuan304201/chat/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	List(ctx context.Context, q MessageQuery) ([]*domain.Message, error)
	CountAfter(ctx context.Context, convID uuid.UUID, after time.Time, excludeSender uuid.UUID) (int, error)
	CountBySender(ctx context.Context, convID, senderID uuid.UUID) (int, error)
	SetText(ctx context.Context, msgID uuid.UUID, newText string) error
	MarkDeletedFor(ctx context.Context, msgID, userID uuid.UUID) error
	Recall(ctx context.Context, msgID uuid.UUID) error
	SetReactions(ctx context.Context, msgID uuid.UUID, reactions []domain.Reaction) error
	MarkSeenUpTo(ctx context.Context, convID uuid.UUID, upTo time.Time, userID uuid.UUID) error
}

// MessageQuery bounds a history read: [After, Until] is the window the
// viewer is entitled to, Before is the pagination cursor's timestamp.
type MessageQuery struct {
	ConversationID uuid.UUID
	ViewerID       uuid.UUID
	After          time.Time
	Until          time.Time
	Before         *time.Time
	Limit          int
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageColumns = `
	id, conversation_id, sender_id, type, text, file_url, metadata,
	reply_to_id, seen_by, is_recalled, edited, deleted_by, reactions, created_at`

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return err
	}
	reactionsJSON, err := json.Marshal(msg.Reactions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, type, text, file_url, metadata,
		                      reply_to_id, seen_by, is_recalled, edited, deleted_by, reactions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Type, msg.Text, msg.FileURL, metadataJSON,
		msg.ReplyToID, uuidsOrEmpty(msg.SeenBy), msg.IsRecalled, msg.Edited, uuidsOrEmpty(msg.DeletedBy), reactionsJSON, msg.CreatedAt,
	).Scan(&msg.CreatedAt)
	if err != nil {
		r.log.Error("Failed to create message", "error", err)
		return err
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("message not found")
		}
		r.log.Error("Failed to get message", "error", err, "message_id", id)
		return nil, err
	}
	return msg, nil
}

func (r *messageRepository) List(ctx context.Context, q MessageQuery) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		  AND created_at > $2
		  AND created_at <= $3
		  AND NOT (deleted_by @> ARRAY[$4]::uuid[])
		  AND ($5::timestamptz IS NULL OR created_at < $5)
		ORDER BY created_at DESC
		LIMIT $6
	`

	rows, err := r.db.Query(ctx, query,
		q.ConversationID, q.After, q.Until, q.ViewerID, q.Before, q.Limit,
	)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CountAfter counts messages authored by someone other than excludeSender
// after the given high-water mark. Feeds the unread badge.
func (r *messageRepository) CountAfter(ctx context.Context, convID uuid.UUID, after time.Time, excludeSender uuid.UUID) (int, error) {
	query := `
		SELECT count(*)
		FROM messages
		WHERE conversation_id = $1 AND created_at > $2 AND sender_id <> $3
	`
	var count int
	if err := r.db.QueryRow(ctx, query, convID, after, excludeSender).Scan(&count); err != nil {
		r.log.Error("Failed to count unread messages", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) CountBySender(ctx context.Context, convID, senderID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM messages WHERE conversation_id = $1 AND sender_id = $2`
	var count int
	if err := r.db.QueryRow(ctx, query, convID, senderID).Scan(&count); err != nil {
		r.log.Error("Failed to count sender messages", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) SetText(ctx context.Context, msgID uuid.UUID, newText string) error {
	query := `UPDATE messages SET text = $2, edited = TRUE WHERE id = $1`
	_, err := r.db.Exec(ctx, query, msgID, newText)
	if err != nil {
		r.log.Error("Failed to edit message", "error", err)
	}
	return err
}

// MarkDeletedFor appends userID to deleted_by exactly once.
func (r *messageRepository) MarkDeletedFor(ctx context.Context, msgID, userID uuid.UUID) error {
	query := `
		UPDATE messages
		SET deleted_by = array_append(deleted_by, $2)
		WHERE id = $1 AND NOT (deleted_by @> ARRAY[$2]::uuid[])
	`
	_, err := r.db.Exec(ctx, query, msgID, userID)
	if err != nil {
		r.log.Error("Failed to mark message deleted", "error", err)
	}
	return err
}

// Recall clears content and leaves a tombstone row.
func (r *messageRepository) Recall(ctx context.Context, msgID uuid.UUID) error {
	query := `
		UPDATE messages
		SET is_recalled = TRUE, text = NULL, file_url = NULL, metadata = '{}'::jsonb
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, msgID)
	if err != nil {
		r.log.Error("Failed to recall message", "error", err)
	}
	return err
}

func (r *messageRepository) SetReactions(ctx context.Context, msgID uuid.UUID, reactions []domain.Reaction) error {
	if reactions == nil {
		reactions = []domain.Reaction{}
	}
	reactionsJSON, err := json.Marshal(reactions)
	if err != nil {
		return err
	}

	query := `UPDATE messages SET reactions = $2 WHERE id = $1`
	_, err = r.db.Exec(ctx, query, msgID, reactionsJSON)
	if err != nil {
		r.log.Error("Failed to set reactions", "error", err)
	}
	return err
}

// MarkSeenUpTo adds userID to seen_by on every message at or before the
// cursor timestamp that they have not already seen.
func (r *messageRepository) MarkSeenUpTo(ctx context.Context, convID uuid.UUID, upTo time.Time, userID uuid.UUID) error {
	query := `
		UPDATE messages
		SET seen_by = array_append(seen_by, $3)
		WHERE conversation_id = $1 AND created_at <= $2 AND NOT (seen_by @> ARRAY[$3]::uuid[])
	`
	_, err := r.db.Exec(ctx, query, convID, upTo, userID)
	if err != nil {
		r.log.Error("Failed to mark seen", "error", err)
	}
	return err
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	msg := &domain.Message{}
	var metadataJSON, reactionsJSON []byte
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Type, &msg.Text, &msg.FileURL, &metadataJSON,
		&msg.ReplyToID, &msg.SeenBy, &msg.IsRecalled, &msg.Edited, &msg.DeletedBy, &reactionsJSON, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
			return nil, err
		}
	}
	if len(reactionsJSON) > 0 {
		if err := json.Unmarshal(reactionsJSON, &msg.Reactions); err != nil {
			return nil, err
		}
	}
	return msg, nil
}
