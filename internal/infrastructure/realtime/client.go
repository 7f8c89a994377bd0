package realtime

import (
	"time"

	"physlab/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client is one admitted connection. The send buffer is closed by the hub on
// dismissal, which ends the write pump.
type Client struct {
	id       string
	identity domain.Identity
	send     chan []byte

	// guarded by Hub.mu
	groups []string
	closed bool

	conn    *websocket.Conn
	limiter *rate.Limiter
}

func NewClient(id string, identity domain.Identity, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		id:       id,
		identity: identity,
		send:     make(chan []byte, buffer),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() domain.Identity { return c.identity }

func (c *Client) enqueue(payload []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

// writePump drains the send buffer and keeps the connection alive with pings.
func (c *Client) writePump(cfg Config, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debugw("write failed", "conn_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debugw("ping failed", "conn_id", c.id, "error", err)
				return
			}
		}
	}
}

// readPump hands every inbound frame to handle until the connection fails.
func (c *Client) readPump(cfg Config, logger *zap.SugaredLogger, handle func(data []byte)) {
	c.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Infow("connection read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
		handle(data)
	}
}
