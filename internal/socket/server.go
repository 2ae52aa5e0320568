package socket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/service"
	apperrors "github.com/tuan304201/chat/pkg/errors"
	"github.com/tuan304201/chat/pkg/logger"
)

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error)

// Server owns the websocket side of the application: connection
// lifecycle, per-event dispatch and the rate limit gate in front of it.
type Server struct {
	hub      *Hub
	fanout   *Fanout
	services *service.Services
	log      logger.Logger

	handlers map[string]handlerFunc
}

func NewServer(hub *Hub, fanout *Fanout, services *service.Services, log logger.Logger) *Server {
	s := &Server{
		hub:      hub,
		fanout:   fanout,
		services: services,
		log:      log,
		handlers: make(map[string]handlerFunc),
	}
	s.handlers[EventConversationJoin] = s.handleConversationJoin
	s.handlers[EventConversationLeave] = s.handleConversationLeave
	s.handlers[EventMessageSend] = s.handleMessageSend
	s.handlers[EventMessageEdit] = s.handleMessageEdit
	s.handlers[EventMessageDelete] = s.handleMessageDelete
	s.handlers[EventMessageRecall] = s.handleMessageRecall
	s.handlers[EventMessageReact] = s.handleMessageReact
	s.handlers[EventMessageSeen] = s.handleMessageSeen
	s.handlers[EventTyping] = s.handleTyping
	s.handlers[EventPresenceCheck] = s.handlePresenceCheck
	return s
}

// HandleConnection takes over an upgraded websocket for an
// authenticated user and runs it until the peer goes away.
func (s *Server) HandleConnection(conn *websocket.Conn, actor domain.Actor) {
	c := &Client{
		ID:     uuid.NewString(),
		Actor:  actor,
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}

	s.hub.register(c)
	s.hub.Join(c, UserRoom(actor.ID))

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	if err := s.services.Presence.Connect(ctx, actor.ID, c.ID); err != nil {
		s.log.Error("Failed to register connection", "user_id", actor.ID, "error", err)
	}
	s.fanout.UserOnline(ctx, actor.ID)

	s.log.Info("Websocket connected", "conn_id", c.ID, "user_id", actor.ID)

	go c.writePump()
	go c.readPump()
}

func (s *Server) handleDisconnect(c *Client) {
	c.markClosed()
	s.hub.unregister(c)

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	transition, err := s.services.Presence.Disconnect(ctx, c.Actor.ID, c.ID)
	if err != nil {
		s.log.Error("Failed to deregister connection", "conn_id", c.ID, "user_id", c.Actor.ID, "error", err)
		return
	}
	if transition != nil {
		s.fanout.UserOffline(ctx, c.Actor.ID, transition.LastSeen)
	}
	s.log.Info("Websocket disconnected", "conn_id", c.ID, "user_id", c.Actor.ID)
}

func (s *Server) dispatch(ctx context.Context, c *Client, frame Frame) {
	allowed, retryAfter, err := s.services.RateLimit.AllowEvent(ctx, c.ID)
	if err != nil {
		s.log.Error("Rate limit check failed", "conn_id", c.ID, "error", err)
	} else if !allowed {
		c.ack(frame.AckID, ackBody{
			Success: false,
			Message: fmt.Sprintf("too many events, retry in %s", retryAfter),
		})
		return
	}

	handler, ok := s.handlers[frame.Event]
	if !ok {
		c.ack(frame.AckID, ackBody{Success: false, Message: "unknown event"})
		return
	}

	result, err := handler(ctx, c, frame.Data)
	if err != nil {
		c.ack(frame.AckID, ackBody{Success: false, Message: clientMessage(err)})
		return
	}
	c.ack(frame.AckID, ackBody{Success: true, Data: result})
}

// clientMessage keeps internal failure details out of acks.
func clientMessage(err error) string {
	if apperrors.CodeOf(err) == apperrors.CodeInternal {
		return "internal error"
	}
	return err.Error()
}

func decode(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		return apperrors.InvalidArgument("missing payload")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperrors.InvalidArgument("malformed payload")
	}
	return nil
}
