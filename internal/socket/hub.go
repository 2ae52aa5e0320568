package socket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tuan304201/chat/pkg/logger"
)

// Hub tracks the connections of one process and the rooms they joined.
// Broadcasts always travel through the Bus, so the sending process
// delivers to its own clients via the same subscription as everyone
// else.
type Hub struct {
	bus Bus
	log logger.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[*Client]struct{}
}

func NewHub(bus Bus, log logger.Logger) *Hub {
	return &Hub{
		bus:     bus,
		log:     log,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Run consumes the bus until ctx is canceled.
func (h *Hub) Run(ctx context.Context) error {
	err := h.bus.Subscribe(ctx, h.deliver)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
}

// unregister removes the client from every room it joined. Safe to call
// more than once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.ID)
	for name, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, name)
			}
		}
	}
}

func (h *Hub) Join(c *Client, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	name := room.String()
	members, ok := h.rooms[name]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[name] = members
	}
	members[c] = struct{}{}
}

func (h *Hub) Leave(c *Client, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room.String())
}

func (h *Hub) leaveLocked(c *Client, name string) {
	members, ok := h.rooms[name]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, name)
	}
}

// Broadcast publishes event to every connection in room, fleet-wide. A
// zero room addresses all connected clients. excludeConn names one
// connection to skip, typically the originator.
func (h *Hub) Broadcast(ctx context.Context, room Room, event string, payload interface{}, excludeConn string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.bus.Publish(ctx, envelope{
		Room:        room,
		Event:       event,
		Payload:     raw,
		ExcludeConn: excludeConn,
	})
}

// Evict drops the listed connections from room on every process. Used
// when a member is kicked so stale connections stop receiving room
// traffic.
func (h *Hub) Evict(ctx context.Context, room Room, connIDs []string) error {
	if len(connIDs) == 0 {
		return nil
	}
	return h.bus.Publish(ctx, envelope{Evict: &evictFrame{Room: room, ConnIDs: connIDs}})
}

func (h *Hub) deliver(env envelope) {
	if env.Evict != nil {
		h.applyEvict(env.Evict)
		return
	}

	frame, err := json.Marshal(Frame{Event: env.Event, Data: env.Payload})
	if err != nil {
		h.log.Error("Failed to encode outbound frame", "event", env.Event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, 8)
	if env.Room.IsZero() {
		for _, c := range h.clients {
			if c.ID != env.ExcludeConn {
				targets = append(targets, c)
			}
		}
	} else {
		for c := range h.rooms[env.Room.String()] {
			if c.ID != env.ExcludeConn {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

func (h *Hub) applyEvict(ev *evictFrame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	name := ev.Room.String()
	for _, id := range ev.ConnIDs {
		if c, ok := h.clients[id]; ok {
			h.leaveLocked(c, name)
		}
	}
}
