package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	errClosed    = errors.New("connection closed")
	errQueueFull = errors.New("send queue full")
)

// client is one authenticated connection. Outbound messages go through a
// bounded queue drained by a single writer goroutine, which keeps delivery
// FIFO per connection and keeps slow readers from stalling broadcasts.
type client struct {
	id     string
	userID int64
	conn   *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(id string, userID int64, conn *websocket.Conn, buffer int) *client {
	return &client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// enqueue never blocks.
func (c *client) enqueue(msg []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return errQueueFull
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) writePump(opts Options) {
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("websocket write failed", "conn_id", c.id, "error", err)
				c.close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(opts.WriteTimeout)); err != nil {
				slog.Debug("websocket ping failed", "conn_id", c.id, "error", err)
				c.close()
				return
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(opts.WriteTimeout))
			return
		}
	}
}

// readPump blocks until the peer goes away or the connection is closed.
func (c *client) readPump(h *Hub, opts Options) {
	defer c.close()

	pongWait := 2 * opts.PingInterval
	c.conn.SetReadLimit(opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handleMessage(c, data)
	}
}
