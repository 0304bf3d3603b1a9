package transport

import (
	"context"
	"time"

	"github.com/tabletop-tavern/api-game/internal/v1/events"
	"github.com/tabletop-tavern/api-game/internal/v1/logging"
	"github.com/tabletop-tavern/api-game/internal/v1/metrics"
	"github.com/tabletop-tavern/api-game/internal/v1/presence"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConnection is the subset of *websocket.Conn the client needs, narrowed
// so tests can fake it without a real socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

const writeWait = 10 * time.Second

// Client bridges one WebSocket connection to a presence.Room and a
// events.Dispatcher. It implements presence.Socket.
type Client struct {
	conn       wsConnection
	room       *presence.Room
	dispatcher *events.Dispatcher
	player     string

	send chan []byte
}

// NewClient wires a connection to its room and dispatcher. The caller must
// start readPump/writePump as goroutines.
func NewClient(conn wsConnection, room *presence.Room, dispatcher *events.Dispatcher, player string) *Client {
	return &Client{
		conn:       conn,
		room:       room,
		dispatcher: dispatcher,
		player:     player,
		send:       make(chan []byte, 256),
	}
}

// Send satisfies presence.Socket: it enqueues a JSON frame for the writer
// goroutine, never blocking the caller.
func (c *Client) Send(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close satisfies presence.Socket: it closes the underlying connection. The
// writer goroutine notices the closed connection and exits on its next
// write attempt; readPump notices on its next read.
func (c *Client) Close(reason string) error {
	logging.Info(context.Background(), "closing client connection", zap.String("player_name", c.player), zap.String("reason", reason))
	return c.conn.Close()
}

// readPump is the connection's single read loop: one JSON frame in, one
// dispatch call, repeat until the socket errors or closes.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.dispatcher.HandlePlayerDisconnect(ctx, c.room, c.player)
		c.room.Remove(c.player, c, nil)
		close(c.send)
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, ok := decodeEnvelope(data)
		if !ok {
			logging.Warn(ctx, "dropping malformed frame", zap.String("player_name", c.player))
			continue
		}
		if env.PlayerName == "" {
			env.PlayerName = c.player
		}

		start := time.Now()
		handled, err := c.dispatcher.Dispatch(ctx, c.room, c.player, env)
		metrics.MessageProcessingDuration.WithLabelValues(env.EventType).Observe(time.Since(start).Seconds())
		switch {
		case err != nil:
			logging.Error(ctx, "handler error", zap.String("event_type", env.EventType), zap.Error(err))
			metrics.WebsocketEvents.WithLabelValues(env.EventType, "error").Inc()
			c.room.SendToPlayer(ctx, c.player, map[string]any{"event_type": "error", "data": err.Error()})
		case !handled:
			logging.Info(ctx, "unknown event type", zap.String("event_type", env.EventType))
			metrics.WebsocketEvents.WithLabelValues(env.EventType, "unknown").Inc()
		default:
			metrics.WebsocketEvents.WithLabelValues(env.EventType, "ok").Inc()
		}
	}
}

// writePump drains the send channel onto the socket; a single slow or dead
// peer never blocks any other client's broadcast since each has its own
// buffered channel and goroutine.
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "error writing message", zap.String("player_name", c.player), zap.Error(err))
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
