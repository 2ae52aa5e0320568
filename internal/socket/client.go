package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tuan304201/chat/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	sendBufferSize = 64

	dispatchTimeout = 15 * time.Second
)

// Client is one live websocket connection of an authenticated user.
type Client struct {
	ID    string
	Actor domain.Actor

	server    *Server
	conn      *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *Client) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// enqueue hands a pre-encoded frame to the write pump. A client whose
// buffer is full is considered stuck and gets disconnected rather than
// stalling the hub.
func (c *Client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	case <-c.closed:
	default:
		c.server.log.Warn("Dropping stuck connection", "conn_id", c.ID, "user_id", c.Actor.ID)
		c.conn.Close()
	}
}

func (c *Client) ack(id *int64, body ackBody) {
	if id == nil {
		return
	}
	data, err := json.Marshal(body)
	if err != nil {
		return
	}
	frame, err := json.Marshal(Frame{Event: eventAck, Data: data, AckID: id})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func (c *Client) readPump() {
	defer func() {
		c.server.handleDisconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.Debug("Websocket read error", "conn_id", c.ID, "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.server.log.Debug("Discarding malformed frame", "conn_id", c.ID, "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		c.server.dispatch(ctx, c, frame)
		cancel()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
