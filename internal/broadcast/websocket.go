package broadcast

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultSendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers are served from other origins; there is no auth to protect.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Client is one WebSocket viewer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{hub: hub, conn: conn, send: make(chan []byte, buffer)}
}

// Deliver queues msg without blocking. A full buffer or a closed client is
// a delivery failure.
func (c *Client) Deliver(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrSubscriberClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops the write pump, which sends a close frame and drops the
// connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ServeWS upgrades the request and attaches the connection as a subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h, conn, h.wsCfg.SendBuffer)
	h.Subscribe(client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) timings() (pingInterval, pongWait time.Duration) {
	pingInterval = time.Duration(c.hub.wsCfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	pongWait = time.Duration(c.hub.wsCfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = 10 * time.Second
	}
	return pingInterval, pongWait
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c)
		c.conn.Close()
	}()

	if limit := c.hub.wsCfg.MaxMessageSize; limit > 0 {
		c.conn.SetReadLimit(int64(limit))
	}
	pingInterval, pongWait := c.timings()
	deadline := func() time.Time { return time.Now().Add(pingInterval + pongWait) }

	c.conn.SetReadDeadline(deadline()) //nolint:errcheck // read error surfaces below
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(deadline())
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Application traffic counts as liveness too.
		c.conn.SetReadDeadline(deadline()) //nolint:errcheck // read error surfaces on next read
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	pingInterval, pongWait := c.timings()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(pongWait)) //nolint:errcheck // write error caught below
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // best effort on shutdown
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(pongWait)) //nolint:errcheck // write error caught below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers one inbound viewer message.
func (c *Client) handleMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.Warn("malformed websocket message", "error", err)
		return
	}

	switch msg.Type {
	case TypeRefreshRequest:
		c.sendSnapshot()
	case TypePing:
		c.hub.Send(c, ClientMessage{Type: TypePong}) //nolint:errcheck // failure prunes the client
	default:
		c.hub.logger.Debug("ignoring websocket message", "type", msg.Type)
	}
}

func (c *Client) sendSnapshot() {
	if c.hub.snapshots == nil {
		return
	}
	//nolint:errcheck // failure prunes the client
	c.hub.Send(c, SnapshotMessage{Type: TypeSnapshot, Devices: c.hub.snapshots.List()})
}
