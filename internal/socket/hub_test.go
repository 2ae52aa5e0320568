package socket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/pkg/logger"
)

// localBus loops every published envelope straight back into the
// subscriber, through a JSON round trip so envelopes cross the same
// encoding boundary as on the wire.
type localBus struct {
	ready   chan struct{}
	handler func(envelope)
}

func newLocalBus() *localBus {
	return &localBus{ready: make(chan struct{})}
}

func (b *localBus) Publish(_ context.Context, env envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var decoded envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	b.handler(decoded)
	return nil
}

func (b *localBus) Subscribe(ctx context.Context, handler func(envelope)) error {
	b.handler = handler
	close(b.ready)
	<-ctx.Done()
	return ctx.Err()
}

func (b *localBus) Close() error { return nil }

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	bus := newLocalBus()
	hub := NewHub(bus, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	select {
	case <-bus.ready:
	case <-time.After(time.Second):
		t.Fatal("hub never subscribed to the bus")
	}
	return hub
}

func newTestClient(hub *Hub, userID uuid.UUID) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		Actor:  domain.Actor{ID: userID, Username: "u-" + userID.String()[:8]},
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
	hub.register(c)
	return c
}

func receiveFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var frame Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return Frame{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame: %s", raw)
	default:
	}
}

func TestHubRoomBroadcast(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	room := ConversationRoom(uuid.New())
	alice := newTestClient(hub, uuid.New())
	bob := newTestClient(hub, uuid.New())
	carol := newTestClient(hub, uuid.New())
	hub.Join(alice, room)
	hub.Join(bob, room)

	require.NoError(t, hub.Broadcast(ctx, room, "message:new", map[string]string{"text": "hi"}, ""))

	for _, c := range []*Client{alice, bob} {
		frame := receiveFrame(t, c)
		assert.Equal(t, "message:new", frame.Event)
		assert.JSONEq(t, `{"text":"hi"}`, string(frame.Data))
	}
	assertNoFrame(t, carol)
}

func TestHubBroadcastExcludesOriginator(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	room := ConversationRoom(uuid.New())
	alice := newTestClient(hub, uuid.New())
	bob := newTestClient(hub, uuid.New())
	hub.Join(alice, room)
	hub.Join(bob, room)

	require.NoError(t, hub.Broadcast(ctx, room, "typing", map[string]bool{"is_typing": true}, alice.ID))

	receiveFrame(t, bob)
	assertNoFrame(t, alice)
}

func TestHubZeroRoomReachesEveryClient(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	alice := newTestClient(hub, uuid.New())
	bob := newTestClient(hub, uuid.New())
	hub.Join(alice, ConversationRoom(uuid.New()))

	require.NoError(t, hub.Broadcast(ctx, Room{}, "user:online", map[string]string{}, ""))

	receiveFrame(t, alice)
	receiveFrame(t, bob)
}

func TestHubEvict(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	room := ConversationRoom(uuid.New())
	alice := newTestClient(hub, uuid.New())
	kicked := newTestClient(hub, uuid.New())
	hub.Join(alice, room)
	hub.Join(kicked, room)

	require.NoError(t, hub.Evict(ctx, room, []string{kicked.ID}))
	require.NoError(t, hub.Broadcast(ctx, room, "message:new", map[string]string{"text": "after"}, ""))

	receiveFrame(t, alice)
	assertNoFrame(t, kicked)

	t.Run("evicted client keeps its personal channel", func(t *testing.T) {
		personal := UserRoom(kicked.Actor.ID)
		hub.Join(kicked, personal)
		require.NoError(t, hub.Broadcast(ctx, personal, "member:kicked", map[string]string{}, ""))
		frame := receiveFrame(t, kicked)
		assert.Equal(t, "member:kicked", frame.Event)
	})

	t.Run("empty eviction list publishes nothing", func(t *testing.T) {
		require.NoError(t, hub.Evict(ctx, room, nil))
		assertNoFrame(t, alice)
	})
}

func TestHubUnregisterLeavesAllRooms(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	roomA := ConversationRoom(uuid.New())
	roomB := ConversationRoom(uuid.New())
	alice := newTestClient(hub, uuid.New())
	bob := newTestClient(hub, uuid.New())
	hub.Join(alice, roomA)
	hub.Join(alice, roomB)
	hub.Join(bob, roomA)

	hub.unregister(alice)
	hub.unregister(alice)

	require.NoError(t, hub.Broadcast(ctx, roomA, "message:new", map[string]string{}, ""))
	require.NoError(t, hub.Broadcast(ctx, roomB, "message:new", map[string]string{}, ""))
	require.NoError(t, hub.Broadcast(ctx, Room{}, "user:offline", map[string]string{}, ""))

	receiveFrame(t, bob)
	receiveFrame(t, bob)
	assertNoFrame(t, alice)
}

func TestHubLeave(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	room := ConversationRoom(uuid.New())
	alice := newTestClient(hub, uuid.New())
	hub.Join(alice, room)
	hub.Leave(alice, room)

	require.NoError(t, hub.Broadcast(ctx, room, "message:new", map[string]string{}, ""))
	assertNoFrame(t, alice)

	// leaving a room never joined is a no-op
	hub.Leave(alice, ConversationRoom(uuid.New()))
}
