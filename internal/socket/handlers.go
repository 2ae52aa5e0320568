package socket

import (
	"context"
	"encoding/json"

	"github.com/tuan304201/chat/internal/domain"
	"github.com/tuan304201/chat/internal/service"
	apperrors "github.com/tuan304201/chat/pkg/errors"
)

// conversation:join subscribes the connection to a room after checking
// the user is still an active member. A kicked user cannot rejoin the
// room even with a stale client.
func (s *Server) handleConversationJoin(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p roomPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if _, err := s.services.Conversation.RequireActiveMember(ctx, p.ConversationID, c.Actor.ID); err != nil {
		return nil, err
	}
	s.hub.Join(c, ConversationRoom(p.ConversationID))
	return roomPayload{ConversationID: p.ConversationID}, nil
}

func (s *Server) handleConversationLeave(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p roomPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	s.hub.Leave(c, ConversationRoom(p.ConversationID))
	return nil, nil
}

func (s *Server) handleMessageSend(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p sendMessagePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}

	in := service.SendInput{
		ConversationID: p.ConversationID,
		SenderID:       c.Actor.ID,
		Type:           domain.MessageType(p.Type),
		ReplyToID:      p.ReplyToID,
		Metadata:       domain.MessageMetadata{Duration: p.Duration, Size: p.Size},
	}
	switch in.Type {
	case domain.MessageText:
		in.Text = &p.Content
	case domain.MessageImage, domain.MessageFile, domain.MessageAudio:
		in.FileURL = &p.Content
	default:
		return nil, apperrors.InvalidArgument("unsupported message type")
	}

	res, err := s.services.Message.Send(ctx, in)
	if err != nil {
		return nil, err
	}
	s.fanout.MessageNew(ctx, res.Conversation, res.Message)
	return res.Message, nil
}

func (s *Server) handleMessageEdit(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p editMessagePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	msg, err := s.services.Message.Edit(ctx, p.MessageID, c.Actor.ID, p.Content)
	if err != nil {
		return nil, err
	}
	s.fanout.MessageUpdated(ctx, msg)
	return msg, nil
}

func (s *Server) handleMessageDelete(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p messageRefPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	msg, err := s.services.Message.DeleteForUser(ctx, p.MessageID, c.Actor.ID)
	if err != nil {
		return nil, err
	}
	s.fanout.MessageDeletedFor(ctx, c.Actor.ID, msg)
	return nil, nil
}

func (s *Server) handleMessageRecall(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p messageRefPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	res, err := s.services.Message.Recall(ctx, p.MessageID, c.Actor.ID)
	if err != nil {
		return nil, err
	}
	s.fanout.MessageRecalled(ctx, res.Conversation, res.Message)
	return res.Message, nil
}

func (s *Server) handleMessageReact(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p reactPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	res, err := s.services.Message.React(ctx, p.MessageID, c.Actor.ID, p.Emoji)
	if err != nil {
		return nil, err
	}
	s.fanout.ReactionUpdated(ctx, res)
	return res.Message, nil
}

func (s *Server) handleMessageSeen(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p seenPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	updated, err := s.services.Message.MarkSeen(ctx, p.ConversationID, c.Actor.ID, p.MessageID)
	if err != nil {
		return nil, err
	}
	if updated {
		s.fanout.SeenUpdate(ctx, p.ConversationID, c.Actor.ID, p.MessageID)
	}
	return nil, nil
}

// typing is fire and forget: no membership lookup, the cost of a stray
// indicator is lower than a read per keystroke.
func (s *Server) handleTyping(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p typingPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	s.fanout.Typing(ctx, p.ConversationID, c.Actor, p.IsTyping, c.ID)
	return nil, nil
}

func (s *Server) handlePresenceCheck(ctx context.Context, c *Client, data json.RawMessage) (interface{}, error) {
	var p presenceCheckPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	statuses, err := s.services.Presence.Check(ctx, p.UserIDs)
	if err != nil {
		return nil, err
	}

	out := make([]presenceEvent, 0, len(p.UserIDs))
	for _, id := range p.UserIDs {
		st := statuses[id]
		out = append(out, presenceEvent{UserID: id, Online: st.Online, LastSeen: st.LastSeen})
	}
	return out, nil
}
