package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openfleet/lastmile/internal/domain/event"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// clientMessage is the only frame clients are expected to send.
type clientMessage struct {
	Type string `json:"type"`
}

type client struct {
	handler *Handler
	conn    *websocket.Conn
	channel string
	sub     event.Subscription
	pong    chan struct{}
	closed  chan struct{}
}

func newClient(h *Handler, conn *websocket.Conn, channel string, sub event.Subscription) *client {
	return &client{
		handler: h,
		conn:    conn,
		channel: channel,
		sub:     sub,
		pong:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

// readPump consumes client frames; a {"type":"ping"} gets a pong through the
// write pump. Any read error tears the connection down.
func (c *client) readPump() {
	defer close(c.closed)
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case c.pong <- struct{}{}:
			default:
			}
		}
	}
}

// writePump serializes all writes: bus events, heartbeats and pongs.
func (c *client) writePump(ctx context.Context) {
	ticker := time.NewTicker(c.handler.heartbeat)
	defer func() {
		ticker.Stop()
		c.handler.bus.Unsubscribe(c.sub)
		_ = c.conn.Close()
		if c.handler.logger != nil {
			c.handler.logger.Log("DEBUG", "WebSocket client disconnected", map[string]interface{}{
				"channel": c.channel,
			})
		}
	}()

	for {
		select {
		case ev, ok := <-c.sub.C():
			if !ok {
				return
			}
			env, send := c.handler.envelope(c.channel, ev)
			if !send {
				continue
			}
			if err := c.write(env); err != nil {
				return
			}

		case <-ticker.C:
			env := Envelope{
				Type:      TypeHeartbeat,
				Data:      map[string]interface{}{"server_time": c.handler.clock.Now().UTC()},
				Timestamp: c.handler.clock.Now().UTC(),
			}
			if err := c.write(env); err != nil {
				return
			}

		case <-c.pong:
			if err := c.write(Envelope{Type: TypePong, Timestamp: c.handler.clock.Now().UTC()}); err != nil {
				return
			}

		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *client) write(env Envelope) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}
