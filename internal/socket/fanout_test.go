package socket

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/pkg/logger"
)

func TestFanoutFriendEvents(t *testing.T) {
	hub := newTestHub(t)
	fanout := NewFanout(hub, nil, logger.Nop())
	ctx := context.Background()

	userID := uuid.New()
	c := newTestClient(hub, userID)
	hub.Join(c, UserRoom(userID))
	stranger := newTestClient(hub, uuid.New())

	for _, event := range []string{
		EventFriendNewRequest,
		EventFriendRequestSent,
		EventFriendRequestAccepted,
		EventFriendRequestDeclined,
		EventFriendRequestCanceled,
		EventFriendUnfriended,
	} {
		fanout.FriendEvent(ctx, userID, event, map[string]string{})
		frame := receiveFrame(t, c)
		assert.Equal(t, event, frame.Event)
	}
	assertNoFrame(t, stranger)

	t.Run("wire names", func(t *testing.T) {
		assert.Equal(t, "friend:new_request", EventFriendNewRequest)
		assert.Equal(t, "friend:request_sent", EventFriendRequestSent)
		assert.Equal(t, "friend:request_accepted", EventFriendRequestAccepted)
		assert.Equal(t, "friend:request_declined", EventFriendRequestDeclined)
		assert.Equal(t, "friend:request_canceled", EventFriendRequestCanceled)
		assert.Equal(t, "friend:unfriended", EventFriendUnfriended)
	})
}

func TestFanoutTyping(t *testing.T) {
	hub := newTestHub(t)
	fanout := NewFanout(hub, nil, logger.Nop())
	ctx := context.Background()

	room := ConversationRoom(uuid.New())
	typist := newTestClient(hub, uuid.New())
	watcher := newTestClient(hub, uuid.New())
	hub.Join(typist, room)
	hub.Join(watcher, room)

	actor := domain.Actor{ID: typist.Actor.ID, Username: "typist"}
	fanout.Typing(ctx, room.id, actor, true, typist.ID)

	frame := receiveFrame(t, watcher)
	assert.Equal(t, "typing", frame.Event)
	assertNoFrame(t, typist)
}
