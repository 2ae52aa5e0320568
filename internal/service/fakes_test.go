package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/repository"
	apperrors "github.com/tuan304201/chat/pkg/errors"
)

// The fakes below keep their own copies of stored rows, the way a real
// database would, so tests catch code that forgets to persist a change
// and only mutates an in-memory struct.

type memConversationRepo struct {
	mu    sync.Mutex
	convs map[uuid.UUID]*domain.Conversation
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{convs: make(map[uuid.UUID]*domain.Conversation)}
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Members = make([]*domain.Member, len(c.Members))
	for i, m := range c.Members {
		mc := *m
		cp.Members[i] = &mc
	}
	if c.LastAction != nil {
		a := *c.LastAction
		cp.LastAction = &a
	}
	return &cp
}

func (r *memConversationRepo) Create(ctx context.Context, conv *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[conv.ID] = copyConversation(conv)
	return nil
}

func (r *memConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, apperrors.NotFound("conversation not found")
	}
	return copyConversation(conv), nil
}

func (r *memConversationRepo) GetByInviteCode(ctx context.Context, code string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.convs {
		if conv.InviteCode != nil && *conv.InviteCode == code {
			return copyConversation(conv), nil
		}
	}
	return nil, apperrors.NotFound("invite code not found")
}

func (r *memConversationRepo) FindPrivateByPair(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conv := range r.convs {
		if conv.Type != domain.ConversationPrivate || len(conv.Members) != 2 {
			continue
		}
		if conv.Member(userA) != nil && conv.Member(userB) != nil {
			return copyConversation(conv), nil
		}
	}
	return nil, apperrors.NotFound("conversation not found")
}

func (r *memConversationRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Conversation
	for _, conv := range r.convs {
		if conv.Member(userID) == nil {
			continue
		}
		if conv.Type == domain.ConversationPrivate && conv.LastMessageID == nil {
			continue
		}
		out = append(out, copyConversation(conv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memConversationRepo) member(convID, userID uuid.UUID) *domain.Member {
	conv, ok := r.convs[convID]
	if !ok {
		return nil
	}
	return conv.Member(userID)
}

func (r *memConversationRepo) AddMember(ctx context.Context, member *domain.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[member.ConversationID]
	if !ok {
		return apperrors.NotFound("conversation not found")
	}
	mc := *member
	conv.Members = append(conv.Members, &mc)
	return nil
}

func (r *memConversationRepo) ReactivateMember(ctx context.Context, convID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.member(convID, userID)
	if m == nil || m.LeftAt == nil {
		return false, nil
	}
	m.LeftAt = nil
	m.Role = domain.RoleMember
	return true, nil
}

func (r *memConversationRepo) SetMemberLeft(ctx context.Context, convID, userID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.member(convID, userID)
	if m == nil || m.LeftAt != nil {
		return false, nil
	}
	m.LeftAt = &at
	return true, nil
}

func (r *memConversationRepo) SetMemberRole(ctx context.Context, convID, userID uuid.UUID, role domain.MemberRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.member(convID, userID); m != nil {
		m.Role = role
	}
	return nil
}

func (r *memConversationRepo) TogglePinned(ctx context.Context, convID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.member(convID, userID)
	if m == nil {
		return false, apperrors.NotFound("member not found")
	}
	m.IsPinned = !m.IsPinned
	return m.IsPinned, nil
}

func (r *memConversationRepo) SetMemberMute(ctx context.Context, convID, userID uuid.UUID, until *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.member(convID, userID); m != nil {
		m.MuteUntil = until
	}
	return nil
}

func (r *memConversationRepo) SetMemberDeletedAt(ctx context.Context, convID, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.member(convID, userID); m != nil {
		m.DeletedAt = &at
		m.HasUnseenReaction = false
	}
	return nil
}

func (r *memConversationRepo) SetMemberViewed(ctx context.Context, convID, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.member(convID, userID); m != nil {
		m.LastViewedAt = &at
		m.HasUnseenReaction = false
	}
	return nil
}

func (r *memConversationRepo) FlagUnseenReactionExcept(ctx context.Context, convID, exceptUserID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return apperrors.NotFound("conversation not found")
	}
	for _, m := range conv.Members {
		if m.IsActive() && m.UserID != exceptUserID {
			m.HasUnseenReaction = true
		}
	}
	return nil
}

func (r *memConversationRepo) CountActiveMembers(ctx context.Context, convID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok {
		return 0, apperrors.NotFound("conversation not found")
	}
	return len(conv.ActiveMembers()), nil
}

func (r *memConversationRepo) SetDisbanded(ctx context.Context, convID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.convs[convID]; ok {
		conv.IsDisbanded = true
		conv.UpdatedAt = time.Now()
	}
	return nil
}

func (r *memConversationRepo) SetLastMessage(ctx context.Context, convID, messageID uuid.UUID, action *domain.LastAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.convs[convID]; ok {
		id := messageID
		conv.LastMessageID = &id
		conv.LastAction = action
		conv.UpdatedAt = action.CreatedAt
	}
	return nil
}

func (r *memConversationRepo) SetLastAction(ctx context.Context, convID uuid.UUID, action *domain.LastAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.convs[convID]; ok {
		conv.LastAction = action
		conv.UpdatedAt = action.CreatedAt
	}
	return nil
}

func (r *memConversationRepo) SetLastActionIfLastMessage(ctx context.Context, convID, messageID uuid.UUID, action *domain.LastAction) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[convID]
	if !ok || conv.LastMessageID == nil || *conv.LastMessageID != messageID {
		return false, nil
	}
	conv.LastAction = action
	conv.UpdatedAt = action.CreatedAt
	return true, nil
}

func (r *memConversationRepo) UpdateInfo(ctx context.Context, convID uuid.UUID, title, avatar *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conv, ok := r.convs[convID]; ok {
		if title != nil {
			conv.Title = title
		}
		if avatar != nil {
			conv.Avatar = avatar
		}
		conv.UpdatedAt = time.Now()
	}
	return nil
}

type memMessageRepo struct {
	mu   sync.Mutex
	msgs map[uuid.UUID]*domain.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{msgs: make(map[uuid.UUID]*domain.Message)}
}

func copyMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.SeenBy = append([]uuid.UUID(nil), m.SeenBy...)
	cp.DeletedBy = append([]uuid.UUID(nil), m.DeletedBy...)
	cp.Reactions = append([]domain.Reaction(nil), m.Reactions...)
	return &cp
}

func (r *memMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs[msg.ID] = copyMessage(msg)
	return nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.msgs[id]
	if !ok {
		return nil, apperrors.NotFound("message not found")
	}
	return copyMessage(msg), nil
}

func (r *memMessageRepo) List(ctx context.Context, q repository.MessageQuery) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, m := range r.msgs {
		if m.ConversationID != q.ConversationID {
			continue
		}
		if !m.CreatedAt.After(q.After) || m.CreatedAt.After(q.Until) {
			continue
		}
		if m.IsHiddenFor(q.ViewerID) {
			continue
		}
		if q.Before != nil && !m.CreatedAt.Before(*q.Before) {
			continue
		}
		out = append(out, copyMessage(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *memMessageRepo) CountAfter(ctx context.Context, convID uuid.UUID, after time.Time, excludeSender uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.msgs {
		if m.ConversationID == convID && m.CreatedAt.After(after) && m.SenderID != excludeSender {
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) CountBySender(ctx context.Context, convID, senderID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.msgs {
		if m.ConversationID == convID && m.SenderID == senderID {
			count++
		}
	}
	return count, nil
}

func (r *memMessageRepo) SetText(ctx context.Context, msgID uuid.UUID, newText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.msgs[msgID]; ok {
		m.Text = &newText
		m.Edited = true
	}
	return nil
}

func (r *memMessageRepo) MarkDeletedFor(ctx context.Context, msgID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.msgs[msgID]; ok && !m.IsHiddenFor(userID) {
		m.DeletedBy = append(m.DeletedBy, userID)
	}
	return nil
}

func (r *memMessageRepo) Recall(ctx context.Context, msgID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.msgs[msgID]; ok {
		m.IsRecalled = true
		m.Text = nil
		m.FileURL = nil
		m.Metadata = domain.MessageMetadata{}
	}
	return nil
}

func (r *memMessageRepo) SetReactions(ctx context.Context, msgID uuid.UUID, reactions []domain.Reaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.msgs[msgID]; ok {
		m.Reactions = append([]domain.Reaction(nil), reactions...)
	}
	return nil
}

func (r *memMessageRepo) MarkSeenUpTo(ctx context.Context, convID uuid.UUID, upTo time.Time, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.ConversationID != convID || m.CreatedAt.After(upTo) {
			continue
		}
		seen := false
		for _, id := range m.SeenBy {
			if id == userID {
				seen = true
				break
			}
		}
		if !seen {
			m.SeenBy = append(m.SeenBy, userID)
		}
	}
	return nil
}

type pairKey struct{ a, b uuid.UUID }

func orderedPair(a, b uuid.UUID) pairKey {
	if a.String() < b.String() {
		return pairKey{a, b}
	}
	return pairKey{b, a}
}

type memFriendRepo struct {
	mu          sync.Mutex
	requests    map[uuid.UUID]*domain.FriendRequest
	friendships map[pairKey]bool

	failCreateFriendship bool
}

func newMemFriendRepo() *memFriendRepo {
	return &memFriendRepo{
		requests:    make(map[uuid.UUID]*domain.FriendRequest),
		friendships: make(map[pairKey]bool),
	}
}

func (r *memFriendRepo) CreateRequest(ctx context.Context, req *domain.FriendRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *memFriendRepo) GetRequestByID(ctx context.Context, id uuid.UUID) (*domain.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, apperrors.NotFound("friend request not found")
	}
	cp := *req
	return &cp, nil
}

func (r *memFriendRepo) GetRequestByPair(ctx context.Context, fromID, toID uuid.UUID) (*domain.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.FromID == fromID && req.ToID == toID {
			cp := *req
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("friend request not found")
}

func (r *memFriendRepo) UpdateRequestStatus(ctx context.Context, id uuid.UUID, status domain.FriendRequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		req.Status = status
		req.UpdatedAt = time.Now()
	}
	return nil
}

func (r *memFriendRepo) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.requests, id)
	return nil
}

func (r *memFriendRepo) ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]*domain.FriendRequest, []*domain.FriendRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var incoming, outgoing []*domain.FriendRequest
	for _, req := range r.requests {
		if req.Status != domain.FriendRequestPending {
			continue
		}
		cp := *req
		switch userID {
		case req.ToID:
			incoming = append(incoming, &cp)
		case req.FromID:
			outgoing = append(outgoing, &cp)
		}
	}
	return incoming, outgoing, nil
}

func (r *memFriendRepo) CreateFriendship(ctx context.Context, userA, userB uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateFriendship {
		return apperrors.Internal("friendship write failed")
	}
	r.friendships[orderedPair(userA, userB)] = true
	return nil
}

func (r *memFriendRepo) DeleteFriendship(ctx context.Context, userA, userB uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.friendships, orderedPair(userA, userB))
	return nil
}

func (r *memFriendRepo) AreFriends(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.friendships[orderedPair(userA, userB)], nil
}

type memPresenceRepo struct {
	mu       sync.Mutex
	sockets  map[uuid.UUID]map[string]struct{}
	online   map[uuid.UUID]bool
	lastSeen map[uuid.UUID]time.Time
}

func newMemPresenceRepo() *memPresenceRepo {
	return &memPresenceRepo{
		sockets:  make(map[uuid.UUID]map[string]struct{}),
		online:   make(map[uuid.UUID]bool),
		lastSeen: make(map[uuid.UUID]time.Time),
	}
}

func (r *memPresenceRepo) AddConnection(ctx context.Context, userID uuid.UUID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sockets[userID] == nil {
		r.sockets[userID] = make(map[string]struct{})
	}
	r.sockets[userID][connID] = struct{}{}
	r.online[userID] = true
	return nil
}

func (r *memPresenceRepo) RemoveConnection(ctx context.Context, userID uuid.UUID, connID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sockets[userID], connID)
	return int64(len(r.sockets[userID])), nil
}

func (r *memPresenceRepo) MarkOffline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, userID)
	r.lastSeen[userID] = at
	return nil
}

func (r *memPresenceRepo) GetConnections(ctx context.Context, userID uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for id := range r.sockets[userID] {
		out = append(out, id)
	}
	return out, nil
}

func (r *memPresenceRepo) Check(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]domain.Presence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]domain.Presence, len(userIDs))
	for _, id := range userIDs {
		p := domain.Presence{Online: r.online[id]}
		if ls, ok := r.lastSeen[id]; ok && !p.Online {
			lsCopy := ls
			p.LastSeen = &lsCopy
		}
		out[id] = p
	}
	return out, nil
}

type memRateLimitRepo struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemRateLimitRepo() *memRateLimitRepo {
	return &memRateLimitRepo{counts: make(map[string]int64)}
}

func (r *memRateLimitRepo) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count, ok := r.counts[key]
	if !ok {
		return true, nil
	}
	return count < int64(limit), nil
}

func (r *memRateLimitRepo) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key], nil
}
