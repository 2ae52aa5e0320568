package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/config"
	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/repository"
	apperrors "github.com/tuan304201/chat/pkg/errors"
	"github.com/tuan304201/chat/pkg/logger"
)

// ConversationService is the membership engine: it owns the conversation
// and member state machine. Every mutation returns the refreshed
// conversation plus the system message appended for it, so the caller can
// fan both out without re-reading.
type ConversationService interface {
	CreatePrivate(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error)
	CreateGroup(ctx context.Context, owner domain.Actor, title string, memberIDs []uuid.UUID, avatar *string) (*MembershipChange, error)
	JoinByInvite(ctx context.Context, code string, user domain.Actor) (*JoinResult, error)
	AddMembers(ctx context.Context, actor domain.Actor, convID uuid.UUID, newMemberIDs []uuid.UUID) (*MembershipChange, error)
	KickMember(ctx context.Context, actor domain.Actor, convID, targetID uuid.UUID) (*MembershipChange, error)
	LeaveGroup(ctx context.Context, actor domain.Actor, convID uuid.UUID) (*LeaveResult, error)
	DisbandGroup(ctx context.Context, actor domain.Actor, convID uuid.UUID) (*MembershipChange, error)
	UpdateMemberRole(ctx context.Context, actor domain.Actor, convID, targetID uuid.UUID, role domain.MemberRole) (*MembershipChange, error)
	UpdateGroupInfo(ctx context.Context, actor domain.Actor, convID uuid.UUID, title, avatar *string) (*domain.Conversation, error)
	TogglePin(ctx context.Context, userID, convID uuid.UUID) (bool, error)
	Mute(ctx context.Context, userID, convID uuid.UUID, minutes int) (*time.Time, error)
	DeleteForUser(ctx context.Context, userID, convID uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit, skip int) ([]*domain.ConversationListEntry, error)
	GetByID(ctx context.Context, convID, userID uuid.UUID) (*ConversationView, error)
	RequireActiveMember(ctx context.Context, convID, userID uuid.UUID) (*domain.Conversation, error)
}

// MembershipChange reports a successful membership mutation.
type MembershipChange struct {
	Conversation *domain.Conversation
	Message      *domain.Message
	TargetID     uuid.UUID
}

type JoinResult struct {
	Conversation *domain.Conversation
	Message      *domain.Message
	IsNew        bool
}

type LeaveResult struct {
	Conversation *domain.Conversation
	Message      *domain.Message
	Disbanded    bool
}

// ConversationView is a conversation as one viewer is entitled to see it.
// A member who left sees a restricted shell: no roster, no invite code.
type ConversationView struct {
	Conversation *domain.Conversation `json:"conversation"`
	IsKicked     bool                 `json:"is_kicked"`
}

type conversationService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	cfg      config.ChatConfig
	log      logger.Logger
}

func NewConversationService(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, cfg config.ChatConfig, log logger.Logger) ConversationService {
	return &conversationService{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		cfg:      cfg,
		log:      log,
	}
}

// CreatePrivate is idempotent: at most one private conversation exists per
// unordered user pair.
func (s *conversationService) CreatePrivate(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	if userA == userB {
		return nil, apperrors.InvalidArgument("cannot create a conversation with yourself")
	}

	existing, err := s.convRepo.FindPrivateByPair(ctx, userA, userB)
	if err == nil {
		return existing, nil
	}
	if !apperrors.Is(err, apperrors.CodeNotFound) {
		return nil, err
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationPrivate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	conv.Members = []*domain.Member{
		{ConversationID: conv.ID, UserID: userA, Role: domain.RoleMember, JoinedAt: now},
		{ConversationID: conv.ID, UserID: userB, Role: domain.RoleMember, JoinedAt: now},
	}

	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *conversationService) CreateGroup(ctx context.Context, owner domain.Actor, title string, memberIDs []uuid.UUID, avatar *string) (*MembershipChange, error) {
	if title == "" {
		title = "New group"
	}

	now := time.Now()
	ownerID := owner.ID
	inviteCode := uuid.NewString()
	conv := &domain.Conversation{
		ID:         uuid.New(),
		Type:       domain.ConversationGroup,
		Title:      &title,
		Avatar:     avatar,
		OwnerID:    &ownerID,
		InviteCode: &inviteCode,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	conv.Members = []*domain.Member{
		{ConversationID: conv.ID, UserID: owner.ID, Role: domain.RoleAdmin, JoinedAt: now},
	}
	for _, id := range memberIDs {
		if id == owner.ID || conv.Member(id) != nil {
			continue
		}
		conv.Members = append(conv.Members, &domain.Member{
			ConversationID: conv.ID, UserID: id, Role: domain.RoleMember, JoinedAt: now,
		})
	}

	if err := s.convRepo.Create(ctx, conv); err != nil {
		return nil, err
	}

	sysMsg, err := s.appendSystemMessage(ctx, conv, owner.ID, fmt.Sprintf("%s created the group", owner.Name()))
	if err != nil {
		return nil, err
	}

	return &MembershipChange{Conversation: conv, Message: sysMsg}, nil
}

func (s *conversationService) JoinByInvite(ctx context.Context, code string, user domain.Actor) (*JoinResult, error) {
	conv, err := s.convRepo.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup() {
		return nil, apperrors.NotFound("invite code not found")
	}
	if conv.IsDisbanded {
		return nil, apperrors.Conflict("this group has been disbanded")
	}

	member := conv.Member(user.ID)
	if member.IsActive() {
		return &JoinResult{Conversation: conv, IsNew: false}, nil
	}

	now := time.Now()
	var text string
	if member.HasLeft() {
		if _, err := s.convRepo.ReactivateMember(ctx, conv.ID, user.ID); err != nil {
			return nil, err
		}
		member.LeftAt = nil
		member.Role = domain.RoleMember
		text = fmt.Sprintf("%s rejoined the group via invite link", user.Name())
	} else {
		member = &domain.Member{ConversationID: conv.ID, UserID: user.ID, Role: domain.RoleMember, JoinedAt: now}
		if err := s.convRepo.AddMember(ctx, member); err != nil {
			return nil, err
		}
		conv.Members = append(conv.Members, member)
		text = fmt.Sprintf("%s joined the group via invite link", user.Name())
	}

	sysMsg, err := s.appendSystemMessage(ctx, conv, user.ID, text)
	if err != nil {
		return nil, err
	}

	return &JoinResult{Conversation: conv, Message: sysMsg, IsNew: true}, nil
}

// AddMembers reactivates previously-left members and appends brand-new
// ones. Requires admin role: the original accepted any active member here,
// which was inconsistent with kick, so the rule is uniform now.
func (s *conversationService) AddMembers(ctx context.Context, actor domain.Actor, convID uuid.UUID, newMemberIDs []uuid.UUID) (*MembershipChange, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup() {
		return nil, apperrors.InvalidArgument("not a group conversation")
	}
	if conv.IsDisbanded {
		return nil, apperrors.Conflict("this group has been disbanded")
	}

	actorMember := conv.Member(actor.ID)
	if !actorMember.IsActive() || !actorMember.IsAdmin() {
		return nil, apperrors.Forbidden("only admins can add members")
	}

	now := time.Now()
	added := 0
	for _, id := range newMemberIDs {
		existing := conv.Member(id)
		switch {
		case existing.IsActive():
			continue
		case existing.HasLeft():
			if _, err := s.convRepo.ReactivateMember(ctx, conv.ID, id); err != nil {
				return nil, err
			}
			existing.LeftAt = nil
			existing.Role = domain.RoleMember
			added++
		default:
			member := &domain.Member{ConversationID: conv.ID, UserID: id, Role: domain.RoleMember, JoinedAt: now}
			if err := s.convRepo.AddMember(ctx, member); err != nil {
				return nil, err
			}
			conv.Members = append(conv.Members, member)
			added++
		}
	}
	if added == 0 {
		return nil, apperrors.Conflict("all targets are already members")
	}

	sysMsg, err := s.appendSystemMessage(ctx, conv, actor.ID, fmt.Sprintf("%s added new members to the group", actor.Name()))
	if err != nil {
		return nil, err
	}

	return &MembershipChange{Conversation: conv, Message: sysMsg}, nil
}

// KickMember is a soft kick: left_at is flagged, the membership record is
// retained for attribution and rejoin detection.
func (s *conversationService) KickMember(ctx context.Context, actor domain.Actor, convID, targetID uuid.UUID) (*MembershipChange, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.IsDisbanded {
		return nil, apperrors.Conflict("this group has been disbanded")
	}

	actorMember := conv.Member(actor.ID)
	target := conv.Member(targetID)
	if target == nil {
		return nil, apperrors.NotFound("member not found")
	}
	if target.HasLeft() {
		return nil, apperrors.Conflict("member already left")
	}
	if !actorMember.CanModerate(conv, target) {
		return nil, apperrors.Forbidden("not allowed to remove this member")
	}

	now := time.Now()
	flipped, err := s.convRepo.SetMemberLeft(ctx, conv.ID, targetID, now)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, apperrors.Conflict("member already left")
	}
	target.LeftAt = &now

	sysMsg, err := s.appendSystemMessage(ctx, conv, actor.ID, "A member was removed from the group")
	if err != nil {
		return nil, err
	}

	return &MembershipChange{Conversation: conv, Message: sysMsg, TargetID: targetID}, nil
}

// LeaveGroup flags the member's departure and auto-disbands the group when
// nobody active remains, preserving history for every past member.
func (s *conversationService) LeaveGroup(ctx context.Context, actor domain.Actor, convID uuid.UUID) (*LeaveResult, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup() {
		return nil, apperrors.InvalidArgument("not a group conversation")
	}
	if conv.IsDisbanded {
		return nil, apperrors.Conflict("this group has been disbanded")
	}

	member := conv.Member(actor.ID)
	if member == nil {
		return nil, apperrors.Forbidden("you are not in this group")
	}
	if member.HasLeft() {
		return nil, apperrors.Conflict("you have already left this group")
	}

	now := time.Now()
	flipped, err := s.convRepo.SetMemberLeft(ctx, conv.ID, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if !flipped {
		return nil, apperrors.Conflict("you have already left this group")
	}
	member.LeftAt = &now

	active, err := s.convRepo.CountActiveMembers(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if active == 0 {
		if err := s.convRepo.SetDisbanded(ctx, conv.ID); err != nil {
			return nil, err
		}
		conv.IsDisbanded = true
	}

	sysMsg, err := s.appendSystemMessage(ctx, conv, actor.ID, fmt.Sprintf("%s left the group", actor.Name()))
	if err != nil {
		return nil, err
	}

	return &LeaveResult{Conversation: conv, Message: sysMsg, Disbanded: conv.IsDisbanded}, nil
}

// DisbandGroup is owner-only and terminal. Members keep their records so
// history stays addressable inside the disbanded shell.
func (s *conversationService) DisbandGroup(ctx context.Context, actor domain.Actor, convID uuid.UUID) (*MembershipChange, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsOwner(actor.ID) {
		return nil, apperrors.Forbidden("only the group owner can disband the group")
	}

	if err := s.convRepo.SetDisbanded(ctx, conv.ID); err != nil {
		return nil, err
	}
	conv.IsDisbanded = true

	sysMsg, err := s.appendSystemMessage(ctx, conv, actor.ID, fmt.Sprintf("The group was disbanded by %s", actor.Name()))
	if err != nil {
		return nil, err
	}

	return &MembershipChange{Conversation: conv, Message: sysMsg}, nil
}

// UpdateMemberRole is owner-only. The original let any admin promote or
// demote anyone, owner included; that was flagged as unintended and is
// restricted here.
func (s *conversationService) UpdateMemberRole(ctx context.Context, actor domain.Actor, convID, targetID uuid.UUID, role domain.MemberRole) (*MembershipChange, error) {
	if role != domain.RoleMember && role != domain.RoleAdmin {
		return nil, apperrors.InvalidArgument("unknown role")
	}

	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.IsDisbanded {
		return nil, apperrors.Conflict("this group has been disbanded")
	}
	if !conv.IsOwner(actor.ID) {
		return nil, apperrors.Forbidden("only the group owner can change roles")
	}
	if conv.IsOwner(targetID) {
		return nil, apperrors.Forbidden("the owner's role cannot be changed")
	}

	target := conv.Member(targetID)
	if !target.IsActive() {
		return nil, apperrors.NotFound("member not found")
	}

	if err := s.convRepo.SetMemberRole(ctx, conv.ID, targetID, role); err != nil {
		return nil, err
	}
	target.Role = role

	text := "A member was promoted to admin"
	if role == domain.RoleMember {
		text = "A member's admin rights were revoked"
	}
	sysMsg, err := s.appendSystemMessage(ctx, conv, actor.ID, text)
	if err != nil {
		return nil, err
	}

	return &MembershipChange{Conversation: conv, Message: sysMsg, TargetID: targetID}, nil
}

func (s *conversationService) UpdateGroupInfo(ctx context.Context, actor domain.Actor, convID uuid.UUID, title, avatar *string) (*domain.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup() {
		return nil, apperrors.InvalidArgument("not a group conversation")
	}
	if conv.IsDisbanded {
		return nil, apperrors.Conflict("this group has been disbanded")
	}
	if !conv.IsOwner(actor.ID) {
		return nil, apperrors.Forbidden("only the group owner can update group info")
	}

	if err := s.convRepo.UpdateInfo(ctx, conv.ID, title, avatar); err != nil {
		return nil, err
	}
	if title != nil {
		conv.Title = title
	}
	if avatar != nil {
		conv.Avatar = avatar
	}

	action := &domain.LastAction{
		Kind:      domain.ActionSystem,
		Text:      fmt.Sprintf("%s updated the group info", actor.Name()),
		ActorID:   actor.ID,
		CreatedAt: time.Now(),
	}
	if err := s.convRepo.SetLastAction(ctx, conv.ID, action); err != nil {
		return nil, err
	}
	conv.LastAction = action

	return conv, nil
}

func (s *conversationService) TogglePin(ctx context.Context, userID, convID uuid.UUID) (bool, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return false, err
	}
	if conv.Member(userID) == nil {
		return false, apperrors.Forbidden("not a member of this conversation")
	}
	return s.convRepo.TogglePinned(ctx, convID, userID)
}

// Mute encodes duration as: 0 unmute, -1 muted until manually unmuted,
// n>0 muted for n minutes.
func (s *conversationService) Mute(ctx context.Context, userID, convID uuid.UUID, minutes int) (*time.Time, error) {
	if minutes < -1 {
		return nil, apperrors.InvalidArgument("invalid mute duration")
	}

	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.Member(userID) == nil {
		return nil, apperrors.Forbidden("not a member of this conversation")
	}

	var until *time.Time
	switch {
	case minutes == 0:
		until = nil
	case minutes == -1:
		until = &domain.MuteForever
	default:
		t := time.Now().Add(time.Duration(minutes) * time.Minute)
		until = &t
	}

	if err := s.convRepo.SetMemberMute(ctx, convID, userID, until); err != nil {
		return nil, err
	}
	return until, nil
}

// DeleteForUser clears this user's view of history from now on; nobody
// else's view changes.
func (s *conversationService) DeleteForUser(ctx context.Context, userID, convID uuid.UUID) error {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return err
	}
	if conv.Member(userID) == nil {
		return apperrors.Forbidden("not a member of this conversation")
	}
	return s.convRepo.SetMemberDeletedAt(ctx, convID, userID, time.Now())
}

func (s *conversationService) ListForUser(ctx context.Context, userID uuid.UUID, limit, skip int) ([]*domain.ConversationListEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = s.cfg.ListPageSize
	}

	convs, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var entries []*domain.ConversationListEntry
	for _, conv := range convs {
		member := conv.Member(userID)
		if member == nil {
			continue
		}
		// Hide conversations whose most recent activity predates the
		// user's own clear-history mark.
		if member.HidesActivityBefore(conv.UpdatedAt) {
			continue
		}

		entry := &domain.ConversationListEntry{
			Conversation: conv,
			IsPinned:     member.IsPinned,
			IsMuted:      member.IsMutedAt(now),
			MuteUntil:    member.MuteUntil,
		}

		lastViewed := time.Time{}
		if member.LastViewedAt != nil {
			lastViewed = *member.LastViewedAt
		}
		unread, err := s.msgRepo.CountAfter(ctx, conv.ID, lastViewed, userID)
		if err != nil {
			return nil, err
		}
		entry.UnreadCount = unread
		if member.HasUnseenReaction {
			// Reactions owe at most one notification unit no matter how
			// many accumulated.
			entry.UnreadCount++
		}

		preview, err := s.buildPreview(ctx, conv, userID)
		if err != nil {
			return nil, err
		}
		entry.Preview = preview

		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].IsPinned && !entries[j].IsPinned
	})

	if skip >= len(entries) {
		return nil, nil
	}
	end := skip + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[skip:end], nil
}

// buildPreview prefers the last action over the stored last message when
// the action is strictly newer and was not performed by the viewer.
func (s *conversationService) buildPreview(ctx context.Context, conv *domain.Conversation, viewerID uuid.UUID) (*domain.Preview, error) {
	var preview *domain.Preview
	var lastMsgAt time.Time

	if conv.LastMessageID != nil {
		msg, err := s.msgRepo.GetByID(ctx, *conv.LastMessageID)
		if err != nil {
			if !apperrors.Is(err, apperrors.CodeNotFound) {
				return nil, err
			}
		} else {
			lastMsgAt = msg.CreatedAt
			preview = &domain.Preview{
				Kind:      domain.ActionMessage,
				Text:      previewText(msg),
				ActorID:   msg.SenderID,
				CreatedAt: msg.CreatedAt,
			}
		}
	}

	if action := conv.LastAction; action != nil && action.CreatedAt.After(lastMsgAt) && action.ActorID != viewerID {
		preview = &domain.Preview{
			Kind:      action.Kind,
			Text:      action.Text,
			ActorID:   action.ActorID,
			CreatedAt: action.CreatedAt,
		}
	}

	return preview, nil
}

func previewText(msg *domain.Message) string {
	if msg.IsRecalled {
		return "Message recalled"
	}
	if msg.Type == domain.MessageText && msg.Text != nil {
		return *msg.Text
	}
	return fmt.Sprintf("[%s]", msg.Type)
}

// GetByID returns the viewer-scoped view: members who left get a shell
// without the roster or invite code.
func (s *conversationService) GetByID(ctx context.Context, convID, userID uuid.UUID) (*ConversationView, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}

	member := conv.Member(userID)
	if member == nil {
		return nil, apperrors.Forbidden("not authorized to view this conversation")
	}

	if member.HasLeft() {
		restricted := *conv
		restricted.Members = nil
		restricted.InviteCode = nil
		return &ConversationView{Conversation: &restricted, IsKicked: true}, nil
	}

	return &ConversationView{Conversation: conv}, nil
}

// RequireActiveMember gates realtime room joins.
func (s *conversationService) RequireActiveMember(ctx context.Context, convID, userID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.Member(userID).IsActive() {
		return nil, apperrors.Forbidden("not an active member of this conversation")
	}
	return conv, nil
}

// appendSystemMessage persists a system-authored message and promotes it
// to the conversation's last message and last action.
func (s *conversationService) appendSystemMessage(ctx context.Context, conv *domain.Conversation, actorID uuid.UUID, text string) (*domain.Message, error) {
	now := time.Now()
	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       actorID,
		Type:           domain.MessageSystem,
		Text:           &text,
		CreatedAt:      now,
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, err
	}

	action := &domain.LastAction{Kind: domain.ActionSystem, Text: text, ActorID: actorID, CreatedAt: now}
	if err := s.convRepo.SetLastMessage(ctx, conv.ID, msg.ID, action); err != nil {
		return nil, err
	}
	conv.LastMessageID = &msg.ID
	conv.LastAction = action
	conv.UpdatedAt = now

	return msg, nil
}
