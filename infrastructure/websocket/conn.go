package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"presence-relay/domain"
	"presence-relay/errors"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Frame is the envelope of every message exchanged with clients.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn is one client socket. Writes go through a bounded queue drained by writePump.
type Conn struct {
	id   domain.ConnectionID
	ws   *websocket.Conn
	log  *slog.Logger
	send chan []byte

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func NewConn(id domain.ConnectionID, ws *websocket.Conn, log *slog.Logger, bufferSize int) *Conn {
	return &Conn{
		id:   id,
		ws:   ws,
		log:  log,
		send: make(chan []byte, bufferSize),
	}
}

func (c *Conn) ID() domain.ConnectionID { return c.id }

// enqueue never blocks: a full queue means the client is not keeping up.
func (c *Conn) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}

// shutdown lets writePump flush what is queued, then send a close frame.
func (c *Conn) shutdown(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.closeCode = code
		c.closeReason = reason
		close(c.send)
	}
}

func (c *Conn) closeMessage() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}

// readPump forwards every frame to handle until the socket fails.
func (c *Conn) readPump(handle func(Frame)) {
	defer c.ws.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("Read error", "connection_id", c.id, "error", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			// Unparsable frames carry no event name
			f = Frame{Data: data}
		}
		handle(f)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, c.closeMessage())
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("Write error", "connection_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
