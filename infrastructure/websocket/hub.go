package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"presence-relay/contract"
	"presence-relay/domain"
	rerrors "presence-relay/errors"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

var _ contract.Transport = (*Hub)(nil)

// ConnectionCounter tracks open sockets.
type ConnectionCounter interface {
	AddConnections(delta int)
}

// Hub maps connection ids to live sockets and implements the transport.
type Hub struct {
	log     *slog.Logger
	counter ConnectionCounter
	mu      sync.RWMutex
	conns   map[domain.ConnectionID]*Conn
}

func NewHub(log *slog.Logger, counter ConnectionCounter) *Hub {
	return &Hub{
		log:     log,
		counter: counter,
		conns:   make(map[domain.ConnectionID]*Conn),
	}
}

func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()
	if h.counter != nil {
		h.counter.AddConnections(1)
	}
}

// Unregister forgets the connection and stops its writer.
func (h *Hub) Unregister(id domain.ConnectionID) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	c.shutdown(websocket.CloseNormalClosure, "")
	if h.counter != nil {
		h.counter.AddConnections(-1)
	}
}

func (h *Hub) Send(id domain.ConnectionID, event string, payload any) error {
	c, ok := h.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", rerrors.ErrConnectionClosed, id)
	}
	data, err := json.Marshal(outboundFrame{Event: event, Data: payload})
	if err != nil {
		return err
	}
	if err := c.enqueue(data); err != nil {
		if errors.Is(err, rerrors.ErrSlowConsumer) {
			h.log.Warn("Dropping slow consumer", "connection_id", id)
			c.shutdown(websocket.CloseTryAgainLater, "too slow")
		}
		return fmt.Errorf("%w: %s", err, id)
	}
	return nil
}

// Close flushes what was already queued for id, then closes the socket.
func (h *Hub) Close(id domain.ConnectionID) error {
	c, ok := h.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", rerrors.ErrConnectionClosed, id)
	}
	c.shutdown(websocket.ClosePolicyViolation, domain.MissingUsernameMessage)
	return nil
}

// CloseAll is used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := lo.Values(h.conns)
	h.mu.RUnlock()
	for _, c := range conns {
		c.shutdown(websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) get(id domain.ConnectionID) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}
