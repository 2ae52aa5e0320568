package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/config"
	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/repository"
	apperrors "github.com/tuan304201/chat/pkg/errors"
	"github.com/tuan304201/chat/pkg/logger"
)

// MessageService owns the message lifecycle and the per-conversation
// last-action projection the sidebar reads.
type MessageService interface {
	Send(ctx context.Context, in SendInput) (*SendResult, error)
	List(ctx context.Context, convID, viewerID uuid.UUID, limit int, cursor *uuid.UUID) ([]*domain.Message, error)
	Edit(ctx context.Context, messageID, editorID uuid.UUID, newText string) (*domain.Message, error)
	DeleteForUser(ctx context.Context, messageID, actorID uuid.UUID) (*domain.Message, error)
	Recall(ctx context.Context, messageID, actorID uuid.UUID) (*RecallResult, error)
	React(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*ReactResult, error)
	MarkSeen(ctx context.Context, convID, userID, lastSeenMessageID uuid.UUID) (bool, error)
}

type SendInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Type           domain.MessageType
	Text           *string
	FileURL        *string
	Metadata       domain.MessageMetadata
	ReplyToID      *uuid.UUID
}

type SendResult struct {
	Message      *domain.Message
	Conversation *domain.Conversation
}

type RecallResult struct {
	Message      *domain.Message
	Conversation *domain.Conversation
}

type ReactResult struct {
	Message      *domain.Message
	Conversation *domain.Conversation
	ShouldNotify bool
}

type messageService struct {
	msgRepo    repository.MessageRepository
	convRepo   repository.ConversationRepository
	friendRepo repository.FriendRepository
	cfg        config.ChatConfig
	log        logger.Logger
}

func NewMessageService(msgRepo repository.MessageRepository, convRepo repository.ConversationRepository, friendRepo repository.FriendRepository, cfg config.ChatConfig, log logger.Logger) MessageService {
	return &messageService{
		msgRepo:    msgRepo,
		convRepo:   convRepo,
		friendRepo: friendRepo,
		cfg:        cfg,
		log:        log,
	}
}

func (s *messageService) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	conv, err := s.convRepo.GetByID(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.IsDisbanded {
		return nil, apperrors.Conflict("this group has been disbanded, messages can no longer be sent")
	}

	sender := conv.Member(in.SenderID)
	if !sender.IsActive() {
		return nil, apperrors.Forbidden("you are not an active member of this conversation")
	}

	switch in.Type {
	case domain.MessageText:
		if in.Text == nil || *in.Text == "" {
			return nil, apperrors.InvalidArgument("text message requires text")
		}
	case domain.MessageImage, domain.MessageFile, domain.MessageAudio:
		if in.FileURL == nil || *in.FileURL == "" {
			return nil, apperrors.InvalidArgument("file message requires a file URL")
		}
	default:
		return nil, apperrors.InvalidArgument("unknown message type")
	}

	if conv.Type == domain.ConversationPrivate {
		if err := s.enforceStrangerLimit(ctx, conv, in.SenderID); err != nil {
			return nil, err
		}
	}

	var replyTo *domain.Message
	if in.ReplyToID != nil {
		replyTo, err = s.msgRepo.GetByID(ctx, *in.ReplyToID)
		if err != nil {
			return nil, err
		}
		if replyTo.ConversationID != conv.ID {
			return nil, apperrors.InvalidArgument("reply target belongs to another conversation")
		}
	}

	now := time.Now()
	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Type:           in.Type,
		Text:           in.Text,
		FileURL:        in.FileURL,
		Metadata:       in.Metadata,
		ReplyToID:      in.ReplyToID,
		CreatedAt:      now,
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	msg.ReplyTo = replyTo

	action := &domain.LastAction{
		Kind:      domain.ActionMessage,
		Text:      previewText(msg),
		ActorID:   in.SenderID,
		CreatedAt: now,
	}
	if err := s.convRepo.SetLastMessage(ctx, conv.ID, msg.ID, action); err != nil {
		return nil, err
	}
	conv.LastMessageID = &msg.ID
	conv.LastAction = action
	conv.UpdatedAt = now

	return &SendResult{Message: msg, Conversation: conv}, nil
}

// enforceStrangerLimit applies the cold-outreach throttle: a non-friend
// sender gets a fixed number of messages into a private conversation
// before the other side must accept a friend request.
func (s *messageService) enforceStrangerLimit(ctx context.Context, conv *domain.Conversation, senderID uuid.UUID) error {
	var receiverID uuid.UUID
	for _, m := range conv.Members {
		if m.UserID != senderID {
			receiverID = m.UserID
			break
		}
	}
	if receiverID == uuid.Nil {
		return nil
	}

	friends, err := s.friendRepo.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	if friends {
		return nil
	}

	sent, err := s.msgRepo.CountBySender(ctx, conv.ID, senderID)
	if err != nil {
		return err
	}
	if sent >= s.cfg.StrangerLimit {
		return apperrors.Forbidden("you need to be friends to send more messages")
	}
	return nil
}

// List pages history newest-first, bounded by the viewer's own clear-history
// mark and departure time, skipping messages they individually deleted.
func (s *messageService) List(ctx context.Context, convID, viewerID uuid.UUID, limit int, cursor *uuid.UUID) ([]*domain.Message, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	member := conv.Member(viewerID)
	if member == nil {
		return nil, apperrors.Forbidden("not authorized to read this conversation")
	}

	if limit <= 0 || limit > 100 {
		limit = s.cfg.MessagePageSize
	}

	q := repository.MessageQuery{
		ConversationID: convID,
		ViewerID:       viewerID,
		Until:          time.Now(),
		Limit:          limit,
	}
	if member.DeletedAt != nil {
		q.After = *member.DeletedAt
	}
	if member.LeftAt != nil {
		q.Until = *member.LeftAt
	}
	if cursor != nil {
		cursorMsg, err := s.msgRepo.GetByID(ctx, *cursor)
		if err != nil {
			return nil, err
		}
		if cursorMsg.ConversationID != convID {
			return nil, apperrors.InvalidArgument("cursor belongs to another conversation")
		}
		q.Before = &cursorMsg.CreatedAt
	}

	return s.msgRepo.List(ctx, q)
}

func (s *messageService) Edit(ctx context.Context, messageID, editorID uuid.UUID, newText string) (*domain.Message, error) {
	if newText == "" {
		return nil, apperrors.InvalidArgument("new text must not be empty")
	}

	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, apperrors.Forbidden("only the sender can edit a message")
	}
	if msg.IsRecalled {
		return nil, apperrors.Conflict("a recalled message cannot be edited")
	}

	if err := s.msgRepo.SetText(ctx, messageID, newText); err != nil {
		return nil, err
	}
	msg.Text = &newText
	msg.Edited = true
	return msg, nil
}

// DeleteForUser hides the message for the actor only; idempotent.
func (s *messageService) DeleteForUser(ctx context.Context, messageID, actorID uuid.UUID) (*domain.Message, error) {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if err := s.msgRepo.MarkDeletedFor(ctx, messageID, actorID); err != nil {
		return nil, err
	}
	if !msg.IsHiddenFor(actorID) {
		msg.DeletedBy = append(msg.DeletedBy, actorID)
	}
	return msg, nil
}

// Recall tombstones a message within the recall window. The sidebar
// projection is retargeted only when the message was still the latest one.
// Recall authorizes on sender and window only; a sender who has since
// left may still recall within the window. Every check runs before the
// tombstone is written.
func (s *messageService) Recall(ctx context.Context, messageID, actorID uuid.UUID) (*RecallResult, error) {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != actorID {
		return nil, apperrors.Forbidden("only the sender can recall a message")
	}
	if time.Since(msg.CreatedAt) > s.cfg.RecallWindow {
		return nil, apperrors.Expired("message is too old to recall")
	}
	conv, err := s.convRepo.GetByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}

	if err := s.msgRepo.Recall(ctx, messageID); err != nil {
		return nil, err
	}
	msg.IsRecalled = true
	msg.Text = nil
	msg.FileURL = nil
	msg.Metadata = domain.MessageMetadata{}

	action := &domain.LastAction{
		Kind:      domain.ActionRecall,
		Text:      "Message recalled",
		ActorID:   actorID,
		CreatedAt: time.Now(),
	}
	if _, err := s.convRepo.SetLastActionIfLastMessage(ctx, msg.ConversationID, msg.ID, action); err != nil {
		return nil, err
	}

	return &RecallResult{Message: msg, Conversation: conv}, nil
}

// React toggles: none -> add, same emoji -> remove, different -> replace.
// When the reactor is not the sender, every other active member gets the
// coalesced unseen-reaction flag and the sidebar projection is updated.
func (s *messageService) React(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*ReactResult, error) {
	if emoji == "" {
		return nil, apperrors.InvalidArgument("emoji must not be empty")
	}

	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conv, err := s.convRepo.GetByID(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Member(userID).IsActive() {
		return nil, apperrors.Forbidden("not an active member of this conversation")
	}

	if idx := msg.ReactionOf(userID); idx >= 0 {
		if msg.Reactions[idx].Emoji == emoji {
			msg.Reactions = append(msg.Reactions[:idx], msg.Reactions[idx+1:]...)
		} else {
			msg.Reactions[idx].Emoji = emoji
		}
	} else {
		msg.Reactions = append(msg.Reactions, domain.Reaction{UserID: userID, Emoji: emoji})
	}

	if err := s.msgRepo.SetReactions(ctx, messageID, msg.Reactions); err != nil {
		return nil, err
	}

	result := &ReactResult{Message: msg, Conversation: conv}
	if msg.SenderID != userID {
		result.ShouldNotify = true

		action := &domain.LastAction{
			Kind:      domain.ActionReaction,
			Text:      fmt.Sprintf("Reacted %s to a message", emoji),
			ActorID:   userID,
			CreatedAt: time.Now(),
		}
		if err := s.convRepo.SetLastAction(ctx, conv.ID, action); err != nil {
			return nil, err
		}
		if err := s.convRepo.FlagUnseenReactionExcept(ctx, conv.ID, userID); err != nil {
			return nil, err
		}
		conv.LastAction = action
	}

	return result, nil
}

// MarkSeen advances the viewer's high-water mark and clears the coalesced
// reaction flag. Seen receipts between non-friends in a private
// conversation are skipped.
func (s *messageService) MarkSeen(ctx context.Context, convID, userID, lastSeenMessageID uuid.UUID) (bool, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return false, err
	}
	member := conv.Member(userID)
	if member == nil {
		return false, apperrors.Forbidden("not a member of this conversation")
	}

	if conv.Type == domain.ConversationPrivate {
		for _, m := range conv.Members {
			if m.UserID == userID {
				continue
			}
			friends, err := s.friendRepo.AreFriends(ctx, userID, m.UserID)
			if err != nil {
				return false, err
			}
			if !friends {
				return false, nil
			}
		}
	}

	cursorMsg, err := s.msgRepo.GetByID(ctx, lastSeenMessageID)
	if err != nil {
		return false, err
	}
	if cursorMsg.ConversationID != convID {
		return false, apperrors.InvalidArgument("message belongs to another conversation")
	}

	if err := s.msgRepo.MarkSeenUpTo(ctx, convID, cursorMsg.CreatedAt, userID); err != nil {
		return false, err
	}
	if err := s.convRepo.SetMemberViewed(ctx, convID, userID, time.Now()); err != nil {
		return false, err
	}

	return true, nil
}
