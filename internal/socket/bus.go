package socket

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/tuan304201/chat/pkg/logger"
)

const busChannel = "chat:socket:events"

// envelope is the cross-process broadcast unit. A regular envelope
// carries an event for a room; an envelope with Evict set is a control
// frame telling every process to drop the listed connections from a room.
type envelope struct {
	Room        Room            `json:"room,omitempty"`
	Event       string          `json:"event,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ExcludeConn string          `json:"exclude_conn,omitempty"`
	Evict       *evictFrame     `json:"evict,omitempty"`
}

type evictFrame struct {
	Room    Room     `json:"room"`
	ConnIDs []string `json:"conn_ids"`
}

// Bus carries envelopes between server processes. Every process
// receives every published envelope, its own included, so local and
// remote delivery share one code path.
type Bus interface {
	Publish(ctx context.Context, env envelope) error
	Subscribe(ctx context.Context, handler func(envelope)) error
	Close() error
}

type redisBus struct {
	client *redis.Client
	log    logger.Logger

	sub *redis.PubSub
}

func NewRedisBus(client *redis.Client, log logger.Logger) Bus {
	return &redisBus{client: client, log: log}
}

func (b *redisBus) Publish(ctx context.Context, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, busChannel, data).Err()
}

// Subscribe blocks until ctx is canceled. The go-redis subscription
// channel transparently resubscribes after connection loss, so a
// dropped Redis link loses in-flight envelopes but never the stream.
func (b *redisBus) Subscribe(ctx context.Context, handler func(envelope)) error {
	b.sub = b.client.Subscribe(ctx, busChannel)
	if _, err := b.sub.Receive(ctx); err != nil {
		return err
	}

	ch := b.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("Discarding malformed bus envelope", "error", err)
				continue
			}
			handler(env)
		}
	}
}

func (b *redisBus) Close() error {
	if b.sub != nil {
		return b.sub.Close()
	}
	return nil
}
