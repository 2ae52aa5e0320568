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

type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetByInviteCode(ctx context.Context, code string) (*domain.Conversation, error)
	FindPrivateByPair(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)

	AddMember(ctx context.Context, member *domain.Member) error
	ReactivateMember(ctx context.Context, convID, userID uuid.UUID) (bool, error)
	SetMemberLeft(ctx context.Context, convID, userID uuid.UUID, at time.Time) (bool, error)
	SetMemberRole(ctx context.Context, convID, userID uuid.UUID, role domain.MemberRole) error
	TogglePinned(ctx context.Context, convID, userID uuid.UUID) (bool, error)
	SetMemberMute(ctx context.Context, convID, userID uuid.UUID, until *time.Time) error
	SetMemberDeletedAt(ctx context.Context, convID, userID uuid.UUID, at time.Time) error
	SetMemberViewed(ctx context.Context, convID, userID uuid.UUID, at time.Time) error
	FlagUnseenReactionExcept(ctx context.Context, convID, exceptUserID uuid.UUID) error
	CountActiveMembers(ctx context.Context, convID uuid.UUID) (int, error)

	SetDisbanded(ctx context.Context, convID uuid.UUID) error
	SetLastMessage(ctx context.Context, convID, messageID uuid.UUID, action *domain.LastAction) error
	SetLastAction(ctx context.Context, convID uuid.UUID, action *domain.LastAction) error
	SetLastActionIfLastMessage(ctx context.Context, convID, messageID uuid.UUID, action *domain.LastAction) (bool, error)
	UpdateInfo(ctx context.Context, convID uuid.UUID, title, avatar *string) error
}

type conversationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewConversationRepository(db *pgxpool.Pool, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

const conversationColumns = `
	id, type, title, avatar, owner_id, invite_code, is_disbanded,
	last_message_id, last_action, join_approval_required, only_admin_can_chat,
	pinned_message_ids, created_at, updated_at`

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	actionJSON, err := marshalLastAction(conv.LastAction)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conversations (id, type, title, avatar, owner_id, invite_code, is_disbanded,
		                           last_message_id, last_action, join_approval_required, only_admin_can_chat,
		                           pinned_message_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.Exec(ctx, query,
		conv.ID, conv.Type, conv.Title, conv.Avatar, conv.OwnerID, conv.InviteCode, conv.IsDisbanded,
		conv.LastMessageID, actionJSON, conv.Settings.JoinApprovalRequired, conv.Settings.OnlyAdminCanChat,
		uuidsOrEmpty(conv.PinnedMessageIDs), conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		r.log.Error("Failed to create conversation", "error", err)
		return err
	}

	for _, m := range conv.Members {
		if err := insertMember(ctx, tx, m); err != nil {
			r.log.Error("Failed to insert member", "error", err)
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertMember(ctx context.Context, tx pgx.Tx, m *domain.Member) error {
	query := `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at, last_viewed_at,
		                                  has_unseen_reaction, is_pinned, mute_until, deleted_at, left_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := tx.Exec(ctx, query,
		m.ConversationID, m.UserID, m.Role, m.JoinedAt, m.LastViewedAt,
		m.HasUnseenReaction, m.IsPinned, m.MuteUntil, m.DeletedAt, m.LeftAt,
	)
	return err
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv, err := r.scanConversation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("conversation not found")
		}
		r.log.Error("Failed to get conversation", "error", err, "conversation_id", id)
		return nil, err
	}

	if err := r.loadMembers(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) GetByInviteCode(ctx context.Context, code string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE invite_code = $1`

	conv, err := r.scanConversation(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("invite code not found")
		}
		r.log.Error("Failed to get conversation by invite code", "error", err)
		return nil, err
	}

	if err := r.loadMembers(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// FindPrivateByPair resolves the single private conversation keyed by the
// unordered user pair, if any.
func (r *conversationRepository) FindPrivateByPair(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE c.type = 'private'
		  AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $1)
		  AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $2)
		  AND (SELECT count(*) FROM conversation_members m WHERE m.conversation_id = c.id) = 2
		LIMIT 1
	`

	conv, err := r.scanConversation(r.db.QueryRow(ctx, query, userA, userB))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("conversation not found")
		}
		r.log.Error("Failed to find private conversation", "error", err)
		return nil, err
	}

	if err := r.loadMembers(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListForUser returns every conversation the user belongs to that is a
// group or has ever carried a message, newest activity first.
func (r *conversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		WHERE EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $1)
		  AND (c.type = 'group' OR c.last_message_id IS NOT NULL)
		ORDER BY c.updated_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err)
		return nil, err
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		conv, err := r.scanConversation(rows)
		if err != nil {
			r.log.Error("Failed to scan conversation", "error", err)
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadMembersBulk(ctx, convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (r *conversationRepository) AddMember(ctx context.Context, member *domain.Member) error {
	query := `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at, last_viewed_at,
		                                  has_unseen_reaction, is_pinned, mute_until, deleted_at, left_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		member.ConversationID, member.UserID, member.Role, member.JoinedAt, member.LastViewedAt,
		member.HasUnseenReaction, member.IsPinned, member.MuteUntil, member.DeletedAt, member.LeftAt,
	)
	if err != nil {
		r.log.Error("Failed to add member", "error", err)
		return err
	}
	return nil
}

// ReactivateMember clears left_at and resets the role for a member who
// previously left. Reports whether a row was actually flipped.
func (r *conversationRepository) ReactivateMember(ctx context.Context, convID, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE conversation_members
		SET left_at = NULL, role = 'member'
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NOT NULL
	`
	tag, err := r.db.Exec(ctx, query, convID, userID)
	if err != nil {
		r.log.Error("Failed to reactivate member", "error", err)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetMemberLeft flips left_at only when the member is still active, so
// concurrent leave/kick calls cannot both win.
func (r *conversationRepository) SetMemberLeft(ctx context.Context, convID, userID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE conversation_members
		SET left_at = $3
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, convID, userID, at)
	if err != nil {
		r.log.Error("Failed to set member left", "error", err)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *conversationRepository) SetMemberRole(ctx context.Context, convID, userID uuid.UUID, role domain.MemberRole) error {
	query := `UPDATE conversation_members SET role = $3 WHERE conversation_id = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, convID, userID, role)
	if err != nil {
		r.log.Error("Failed to set member role", "error", err)
	}
	return err
}

func (r *conversationRepository) TogglePinned(ctx context.Context, convID, userID uuid.UUID) (bool, error) {
	query := `
		UPDATE conversation_members
		SET is_pinned = NOT is_pinned
		WHERE conversation_id = $1 AND user_id = $2
		RETURNING is_pinned
	`
	var pinned bool
	if err := r.db.QueryRow(ctx, query, convID, userID).Scan(&pinned); err != nil {
		r.log.Error("Failed to toggle pin", "error", err)
		return false, err
	}
	return pinned, nil
}

func (r *conversationRepository) SetMemberMute(ctx context.Context, convID, userID uuid.UUID, until *time.Time) error {
	query := `UPDATE conversation_members SET mute_until = $3 WHERE conversation_id = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, convID, userID, until)
	if err != nil {
		r.log.Error("Failed to set mute", "error", err)
	}
	return err
}

func (r *conversationRepository) SetMemberDeletedAt(ctx context.Context, convID, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE conversation_members
		SET deleted_at = $3, has_unseen_reaction = FALSE
		WHERE conversation_id = $1 AND user_id = $2
	`
	_, err := r.db.Exec(ctx, query, convID, userID, at)
	if err != nil {
		r.log.Error("Failed to set deleted_at", "error", err)
	}
	return err
}

func (r *conversationRepository) SetMemberViewed(ctx context.Context, convID, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE conversation_members
		SET last_viewed_at = $3, has_unseen_reaction = FALSE
		WHERE conversation_id = $1 AND user_id = $2
	`
	_, err := r.db.Exec(ctx, query, convID, userID, at)
	if err != nil {
		r.log.Error("Failed to set last_viewed_at", "error", err)
	}
	return err
}

// FlagUnseenReactionExcept coalesces reaction notifications: the flag is
// set, never counted, for every active member but the reactor.
func (r *conversationRepository) FlagUnseenReactionExcept(ctx context.Context, convID, exceptUserID uuid.UUID) error {
	query := `
		UPDATE conversation_members
		SET has_unseen_reaction = TRUE
		WHERE conversation_id = $1 AND user_id <> $2 AND left_at IS NULL
	`
	_, err := r.db.Exec(ctx, query, convID, exceptUserID)
	if err != nil {
		r.log.Error("Failed to flag unseen reaction", "error", err)
	}
	return err
}

func (r *conversationRepository) CountActiveMembers(ctx context.Context, convID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM conversation_members WHERE conversation_id = $1 AND left_at IS NULL`
	var count int
	if err := r.db.QueryRow(ctx, query, convID).Scan(&count); err != nil {
		r.log.Error("Failed to count active members", "error", err)
		return 0, err
	}
	return count, nil
}

func (r *conversationRepository) SetDisbanded(ctx context.Context, convID uuid.UUID) error {
	query := `UPDATE conversations SET is_disbanded = TRUE, updated_at = $2 WHERE id = $1`
	_, err := r.db.Exec(ctx, query, convID, time.Now())
	if err != nil {
		r.log.Error("Failed to disband conversation", "error", err)
	}
	return err
}

func (r *conversationRepository) SetLastMessage(ctx context.Context, convID, messageID uuid.UUID, action *domain.LastAction) error {
	actionJSON, err := marshalLastAction(action)
	if err != nil {
		return err
	}

	query := `
		UPDATE conversations
		SET last_message_id = $2, last_action = $3, updated_at = $4
		WHERE id = $1
	`
	_, err = r.db.Exec(ctx, query, convID, messageID, actionJSON, time.Now())
	if err != nil {
		r.log.Error("Failed to set last message", "error", err)
	}
	return err
}

// SetLastAction rewrites the preview projection without moving the last
// message pointer (reaction activity).
func (r *conversationRepository) SetLastAction(ctx context.Context, convID uuid.UUID, action *domain.LastAction) error {
	actionJSON, err := marshalLastAction(action)
	if err != nil {
		return err
	}

	query := `UPDATE conversations SET last_action = $2, updated_at = $3 WHERE id = $1`
	_, err = r.db.Exec(ctx, query, convID, actionJSON, time.Now())
	if err != nil {
		r.log.Error("Failed to set last action", "error", err)
	}
	return err
}

// SetLastActionIfLastMessage rewrites the preview projection only when the
// given message is still the conversation's latest one.
func (r *conversationRepository) SetLastActionIfLastMessage(ctx context.Context, convID, messageID uuid.UUID, action *domain.LastAction) (bool, error) {
	actionJSON, err := marshalLastAction(action)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE conversations
		SET last_action = $3, updated_at = $4
		WHERE id = $1 AND last_message_id = $2
	`
	tag, err := r.db.Exec(ctx, query, convID, messageID, actionJSON, time.Now())
	if err != nil {
		r.log.Error("Failed to set last action", "error", err)
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *conversationRepository) UpdateInfo(ctx context.Context, convID uuid.UUID, title, avatar *string) error {
	query := `
		UPDATE conversations
		SET title = COALESCE($2, title), avatar = COALESCE($3, avatar), updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, convID, title, avatar, time.Now())
	if err != nil {
		r.log.Error("Failed to update conversation info", "error", err)
	}
	return err
}

func (r *conversationRepository) scanConversation(row pgx.Row) (*domain.Conversation, error) {
	conv := &domain.Conversation{}
	var actionJSON []byte
	err := row.Scan(
		&conv.ID, &conv.Type, &conv.Title, &conv.Avatar, &conv.OwnerID, &conv.InviteCode, &conv.IsDisbanded,
		&conv.LastMessageID, &actionJSON, &conv.Settings.JoinApprovalRequired, &conv.Settings.OnlyAdminCanChat,
		&conv.PinnedMessageIDs, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(actionJSON) > 0 {
		action := &domain.LastAction{}
		if err := json.Unmarshal(actionJSON, action); err != nil {
			return nil, err
		}
		conv.LastAction = action
	}
	return conv, nil
}

func (r *conversationRepository) loadMembers(ctx context.Context, conv *domain.Conversation) error {
	return r.loadMembersBulk(ctx, []*domain.Conversation{conv})
}

func (r *conversationRepository) loadMembersBulk(ctx context.Context, convs []*domain.Conversation) error {
	if len(convs) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(convs))
	byID := make(map[uuid.UUID]*domain.Conversation, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
		byID[c.ID] = c
	}

	query := `
		SELECT conversation_id, user_id, role, joined_at, last_viewed_at,
		       has_unseen_reaction, is_pinned, mute_until, deleted_at, left_at
		FROM conversation_members
		WHERE conversation_id = ANY($1)
		ORDER BY joined_at ASC
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		r.log.Error("Failed to load members", "error", err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		m := &domain.Member{}
		err := rows.Scan(
			&m.ConversationID, &m.UserID, &m.Role, &m.JoinedAt, &m.LastViewedAt,
			&m.HasUnseenReaction, &m.IsPinned, &m.MuteUntil, &m.DeletedAt, &m.LeftAt,
		)
		if err != nil {
			r.log.Error("Failed to scan member", "error", err)
			return err
		}
		if conv, ok := byID[m.ConversationID]; ok {
			conv.Members = append(conv.Members, m)
		}
	}
	return rows.Err()
}

func marshalLastAction(action *domain.LastAction) ([]byte, error) {
	if action == nil {
		return nil, nil
	}
	return json.Marshal(action)
}
