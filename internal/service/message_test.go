package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuan304201/chat/internal/domain"
	apperrors "github.com/tuan304201/chat/pkg/errors"
	"github.com/tuan304201/chat/pkg/logger"
)

func strPtr(s string) *string { return &s }

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture()
	owner := testActor("owner")
	member := testActor("member")
	res, err := f.svc.CreateGroup(ctx, owner, "team", []uuid.UUID{member.ID}, nil)
	require.NoError(t, err)
	convID := res.Conversation.ID

	t.Run("text requires text", func(t *testing.T) {
		_, err := f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: owner.ID, Type: domain.MessageText})
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("media requires a file URL", func(t *testing.T) {
		_, err := f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: owner.ID, Type: domain.MessageImage})
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("non-members cannot send", func(t *testing.T) {
		_, err := f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: uuid.New(), Type: domain.MessageText, Text: strPtr("hi")})
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("reply target must share the conversation", func(t *testing.T) {
		other, err := f.svc.CreateGroup(ctx, owner, "other", nil, nil)
		require.NoError(t, err)
		foreign, err := f.msgSvc.Send(ctx, SendInput{ConversationID: other.Conversation.ID, SenderID: owner.ID, Type: domain.MessageText, Text: strPtr("elsewhere")})
		require.NoError(t, err)

		_, err = f.msgSvc.Send(ctx, SendInput{
			ConversationID: convID, SenderID: owner.ID, Type: domain.MessageText,
			Text: strPtr("reply"), ReplyToID: &foreign.Message.ID,
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})

	t.Run("sending updates the sidebar projection", func(t *testing.T) {
		out, err := f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: member.ID, Type: domain.MessageText, Text: strPtr("hello")})
		require.NoError(t, err)
		require.NotNil(t, out.Conversation.LastMessageID)
		assert.Equal(t, out.Message.ID, *out.Conversation.LastMessageID)
		require.NotNil(t, out.Conversation.LastAction)
		assert.Equal(t, domain.ActionMessage, out.Conversation.LastAction.Kind)
		assert.Equal(t, "hello", out.Conversation.LastAction.Text)
	})

	t.Run("disbanded conversations reject sends", func(t *testing.T) {
		_, err := f.svc.DisbandGroup(ctx, owner, convID)
		require.NoError(t, err)
		_, err = f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: owner.ID, Type: domain.MessageText, Text: strPtr("hi")})
		assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
	})
}

func TestStrangerLimit(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture()
	alice, bob := testActor("alice"), testActor("bob")
	conv, err := f.svc.CreatePrivate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	send := func(from domain.Actor) error {
		_, err := f.msgSvc.Send(ctx, SendInput{ConversationID: conv.ID, SenderID: from.ID, Type: domain.MessageText, Text: strPtr("hey")})
		return err
	}

	require.NoError(t, send(alice), "first courtesy message goes through")

	err = send(alice)
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden), "second message from a stranger is rejected")

	// The limit is per sender: the other side gets their own courtesy message.
	require.NoError(t, send(bob))

	// Accepting a friend request lifts the limit entirely.
	req, err := NewFriendService(f.friends, logger.Nop()).SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = NewFriendService(f.friends, logger.Nop()).AcceptRequest(ctx, req.ID, bob.ID)
	require.NoError(t, err)

	require.NoError(t, send(alice))
	require.NoError(t, send(alice))
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture()
	owner := testActor("owner")
	member := testActor("member")
	res, err := f.svc.CreateGroup(ctx, owner, "team", []uuid.UUID{member.ID}, nil)
	require.NoError(t, err)

	sent, err := f.msgSvc.Send(ctx, SendInput{ConversationID: res.Conversation.ID, SenderID: owner.ID, Type: domain.MessageText, Text: strPtr("first")})
	require.NoError(t, err)

	t.Run("only the sender can edit", func(t *testing.T) {
		_, err := f.msgSvc.Edit(ctx, sent.Message.ID, member.ID, "hacked")
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("edit replaces text and marks the message", func(t *testing.T) {
		msg, err := f.msgSvc.Edit(ctx, sent.Message.ID, owner.ID, "second")
		require.NoError(t, err)
		require.NotNil(t, msg.Text)
		assert.Equal(t, "second", *msg.Text)
		assert.True(t, msg.Edited)
	})

	t.Run("recalled messages cannot be edited", func(t *testing.T) {
		_, err := f.msgSvc.Recall(ctx, sent.Message.ID, owner.ID)
		require.NoError(t, err)
		_, err = f.msgSvc.Edit(ctx, sent.Message.ID, owner.ID, "third")
		assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
	})
}

func TestDeleteForUser(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture()
	owner := testActor("owner")
	member := testActor("member")
	res, err := f.svc.CreateGroup(ctx, owner, "team", []uuid.UUID{member.ID}, nil)
	require.NoError(t, err)
	convID := res.Conversation.ID

	sent, err := f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: owner.ID, Type: domain.MessageText, Text: strPtr("gone for me")})
	require.NoError(t, err)

	_, err = f.msgSvc.DeleteForUser(ctx, sent.Message.ID, member.ID)
	require.NoError(t, err)
	_, err = f.msgSvc.DeleteForUser(ctx, sent.Message.ID, member.ID)
	require.NoError(t, err, "delete for me is idempotent")

	memberView, err := f.msgSvc.List(ctx, convID, member.ID, 50, nil)
	require.NoError(t, err)
	for _, m := range memberView {
		assert.NotEqual(t, sent.Message.ID, m.ID)
	}

	ownerView, err := f.msgSvc.List(ctx, convID, owner.ID, 50, nil)
	require.NoError(t, err)
	found := false
	for _, m := range ownerView {
		if m.ID == sent.Message.ID {
			found = true
		}
	}
	assert.True(t, found, "other members still see the message")
}

func TestRecall(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture()
	owner := testActor("owner")
	member := testActor("member")
	res, err := f.svc.CreateGroup(ctx, owner, "team", []uuid.UUID{member.ID}, nil)
	require.NoError(t, err)
	convID := res.Conversation.ID

	t.Run("only the sender can recall", func(t *testing.T) {
		sent, err := f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: owner.ID, Type: domain.MessageText, Text: strPtr("mine")})
		require.NoError(t, err)
		_, err = f.msgSvc.Recall(ctx, sent.Message.ID, member.ID)
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})

	t.Run("recall clears content and retargets the sidebar", func(t *testing.T) {
		sent, err := f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: owner.ID, Type: domain.MessageText, Text: strPtr("oops")})
		require.NoError(t, err)

		recalled, err := f.msgSvc.Recall(ctx, sent.Message.ID, owner.ID)
		require.NoError(t, err)
		assert.True(t, recalled.Message.IsRecalled)
		assert.Nil(t, recalled.Message.Text)
		assert.Nil(t, recalled.Message.FileURL)
		assert.Equal(t, convID, recalled.Conversation.ID)

		conv, err := f.svc.RequireActiveMember(ctx, convID, owner.ID)
		require.NoError(t, err)
		require.NotNil(t, conv.LastAction)
		assert.Equal(t, domain.ActionRecall, conv.LastAction.Kind)
	})

	t.Run("recalling an older message leaves the sidebar alone", func(t *testing.T) {
		first, err := f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: owner.ID, Type: domain.MessageText, Text: strPtr("older")})
		require.NoError(t, err)
		_, err = f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: owner.ID, Type: domain.MessageText, Text: strPtr("newest")})
		require.NoError(t, err)

		_, err = f.msgSvc.Recall(ctx, first.Message.ID, owner.ID)
		require.NoError(t, err)

		conv, err := f.svc.RequireActiveMember(ctx, convID, owner.ID)
		require.NoError(t, err)
		require.NotNil(t, conv.LastAction)
		assert.Equal(t, domain.ActionMessage, conv.LastAction.Kind)
		assert.Equal(t, "newest", conv.LastAction.Text)
	})

	t.Run("the window closes", func(t *testing.T) {
		old := &domain.Message{
			ID:             uuid.New(),
			ConversationID: convID,
			SenderID:       owner.ID,
			Type:           domain.MessageText,
			Text:           strPtr("ancient"),
			CreatedAt:      time.Now().Add(-2 * time.Hour),
		}
		require.NoError(t, f.msgRepo.Create(ctx, old))

		_, err := f.msgSvc.Recall(ctx, old.ID, owner.ID)
		assert.True(t, apperrors.Is(err, apperrors.CodeExpired))
	})

	t.Run("a sender who left can still recall within the window", func(t *testing.T) {
		res2, err := f.svc.CreateGroup(ctx, owner, "short-lived", []uuid.UUID{member.ID}, nil)
		require.NoError(t, err)
		sent, err := f.msgSvc.Send(ctx, SendInput{ConversationID: res2.Conversation.ID, SenderID: member.ID, Type: domain.MessageText, Text: strPtr("regret")})
		require.NoError(t, err)

		_, err = f.svc.LeaveGroup(ctx, member, res2.Conversation.ID)
		require.NoError(t, err)

		recalled, err := f.msgSvc.Recall(ctx, sent.Message.ID, member.ID)
		require.NoError(t, err)
		assert.True(t, recalled.Message.IsRecalled)
		assert.Equal(t, res2.Conversation.ID, recalled.Conversation.ID)
	})
}

func TestReactToggle(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture()
	owner := testActor("owner")
	member := testActor("member")
	res, err := f.svc.CreateGroup(ctx, owner, "team", []uuid.UUID{member.ID}, nil)
	require.NoError(t, err)
	convID := res.Conversation.ID

	sent, err := f.msgSvc.Send(ctx, SendInput{ConversationID: convID, SenderID: owner.ID, Type: domain.MessageText, Text: strPtr("react to me")})
	require.NoError(t, err)
	msgID := sent.Message.ID

	t.Run("add", func(t *testing.T) {
		out, err := f.msgSvc.React(ctx, msgID, member.ID, "heart")
		require.NoError(t, err)
		require.Len(t, out.Message.Reactions, 1)
		assert.True(t, out.ShouldNotify)
	})

	t.Run("different emoji replaces", func(t *testing.T) {
		out, err := f.msgSvc.React(ctx, msgID, member.ID, "fire")
		require.NoError(t, err)
		require.Len(t, out.Message.Reactions, 1)
		assert.Equal(t, "fire", out.Message.Reactions[0].Emoji)
	})

	t.Run("same emoji removes", func(t *testing.T) {
		out, err := f.msgSvc.React(ctx, msgID, member.ID, "fire")
		require.NoError(t, err)
		assert.Empty(t, out.Message.Reactions)
	})

	t.Run("self reaction never notifies", func(t *testing.T) {
		out, err := f.msgSvc.React(ctx, msgID, owner.ID, "heart")
		require.NoError(t, err)
		assert.False(t, out.ShouldNotify)
	})

	t.Run("non-members cannot react", func(t *testing.T) {
		_, err := f.msgSvc.React(ctx, msgID, uuid.New(), "heart")
		assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
	})
}

func TestMarkSeen(t *testing.T) {
	ctx := context.Background()
	f := newConvFixture()
	alice, bob := testActor("alice"), testActor("bob")
	conv, err := f.svc.CreatePrivate(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	sent, err := f.msgSvc.Send(ctx, SendInput{ConversationID: conv.ID, SenderID: alice.ID, Type: domain.MessageText, Text: strPtr("seen?")})
	require.NoError(t, err)

	t.Run("no receipts between strangers", func(t *testing.T) {
		updated, err := f.msgSvc.MarkSeen(ctx, conv.ID, bob.ID, sent.Message.ID)
		require.NoError(t, err)
		assert.False(t, updated)
	})

	f.friends.friendships[orderedPair(alice.ID, bob.ID)] = true

	t.Run("friends advance the high-water mark", func(t *testing.T) {
		updated, err := f.msgSvc.MarkSeen(ctx, conv.ID, bob.ID, sent.Message.ID)
		require.NoError(t, err)
		assert.True(t, updated)

		msg, err := f.msgRepo.GetByID(ctx, sent.Message.ID)
		require.NoError(t, err)
		assert.Contains(t, msg.SeenBy, bob.ID)

		entries, err := f.svc.ListForUser(ctx, bob.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Zero(t, entries[0].UnreadCount)
	})

	t.Run("cursor must belong to the conversation", func(t *testing.T) {
		other, err := f.svc.CreateGroup(ctx, alice, "team", []uuid.UUID{bob.ID}, nil)
		require.NoError(t, err)
		_, err = f.msgSvc.MarkSeen(ctx, conv.ID, bob.ID, other.Message.ID)
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidArgument))
	})
}
