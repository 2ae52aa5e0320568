package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

type MemberRole string

const (
	RoleMember MemberRole = "member"
	RoleAdmin  MemberRole = "admin"
)

type ActionKind string

const (
	ActionMessage  ActionKind = "message"
	ActionReaction ActionKind = "reaction"
	ActionRecall   ActionKind = "recall"
	ActionSystem   ActionKind = "system"
)

// MuteForever is the sentinel expiry for "muted until manually unmuted".
var MuteForever = time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)

// LastAction is the denormalized most-recent-activity projection used for
// list previews without re-reading the message store.
type LastAction struct {
	Kind      ActionKind `json:"kind"`
	Text      string     `json:"text"`
	ActorID   uuid.UUID  `json:"actor_id"`
	CreatedAt time.Time  `json:"created_at"`
}

type ConversationSettings struct {
	JoinApprovalRequired bool `json:"join_approval_required"`
	OnlyAdminCanChat     bool `json:"only_admin_can_chat"`
}

type Conversation struct {
	ID               uuid.UUID            `json:"id"`
	Type             ConversationType     `json:"type"`
	Title            *string              `json:"title,omitempty"`
	Avatar           *string              `json:"avatar,omitempty"`
	OwnerID          *uuid.UUID           `json:"owner_id,omitempty"`
	InviteCode       *string              `json:"invite_code,omitempty"`
	IsDisbanded      bool                 `json:"is_disbanded"`
	LastMessageID    *uuid.UUID           `json:"last_message_id,omitempty"`
	LastAction       *LastAction          `json:"last_action,omitempty"`
	Settings         ConversationSettings `json:"settings"`
	PinnedMessageIDs []uuid.UUID          `json:"pinned_message_ids,omitempty"`
	Members          []*Member            `json:"members,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

// Member returns the membership record for userID, left or not. Nil when
// the user was never a member.
func (c *Conversation) Member(userID uuid.UUID) *Member {
	for _, m := range c.Members {
		if m.UserID == userID {
			return m
		}
	}
	return nil
}

func (c *Conversation) ActiveMembers() []*Member {
	var active []*Member
	for _, m := range c.Members {
		if m.IsActive() {
			active = append(active, m)
		}
	}
	return active
}

// IsOwner reports whether userID owns the group. Legacy groups without an
// explicit owner fall back to the first member.
func (c *Conversation) IsOwner(userID uuid.UUID) bool {
	if c.OwnerID != nil {
		return *c.OwnerID == userID
	}
	return len(c.Members) > 0 && c.Members[0].UserID == userID
}

type Member struct {
	ConversationID    uuid.UUID  `json:"conversation_id"`
	UserID            uuid.UUID  `json:"user_id"`
	Role              MemberRole `json:"role"`
	JoinedAt          time.Time  `json:"joined_at"`
	LastViewedAt      *time.Time `json:"last_viewed_at,omitempty"`
	HasUnseenReaction bool       `json:"has_unseen_reaction"`
	IsPinned          bool       `json:"is_pinned"`
	MuteUntil         *time.Time `json:"mute_until,omitempty"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	LeftAt            *time.Time `json:"left_at,omitempty"`
}

func (m *Member) IsActive() bool {
	return m != nil && m.LeftAt == nil
}

func (m *Member) HasLeft() bool {
	return m != nil && m.LeftAt != nil
}

func (m *Member) IsAdmin() bool {
	return m != nil && m.Role == RoleAdmin
}

func (m *Member) IsMutedAt(now time.Time) bool {
	return m != nil && m.MuteUntil != nil && m.MuteUntil.After(now)
}

// CanModerate reports whether m may kick target out of conv: admins only,
// the owner is untouchable, and a peer admin may only be kicked by the owner.
func (m *Member) CanModerate(conv *Conversation, target *Member) bool {
	if !m.IsActive() || !m.IsAdmin() {
		return false
	}
	if conv.IsOwner(target.UserID) {
		return false
	}
	if target.IsAdmin() && !conv.IsOwner(m.UserID) {
		return false
	}
	return true
}

// HidesActivityBefore reports whether ts falls inside the span of history
// the member cleared with delete-for-me.
func (m *Member) HidesActivityBefore(ts time.Time) bool {
	return m != nil && m.DeletedAt != nil && !ts.After(*m.DeletedAt)
}

// Preview is what a conversation list entry shows as its last line. It is
// either the raw last message or a strictly-newer last action performed by
// someone other than the viewer.
type Preview struct {
	Kind      ActionKind `json:"kind"`
	Text      string     `json:"text"`
	ActorID   uuid.UUID  `json:"actor_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// ConversationListEntry is one row of a user's sidebar.
type ConversationListEntry struct {
	Conversation *Conversation `json:"conversation"`
	IsPinned     bool          `json:"is_pinned"`
	IsMuted      bool          `json:"is_muted"`
	MuteUntil    *time.Time    `json:"mute_until,omitempty"`
	UnreadCount  int           `json:"unread_count"`
	Preview      *Preview      `json:"preview,omitempty"`
}
