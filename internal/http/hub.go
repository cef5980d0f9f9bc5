package httpapi

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/ride-client/internal/observability"
)

const writeWait = 5 * time.Second

// viewConn is one connected view. gorilla connections allow a single
// concurrent writer, hence the mutex.
type viewConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *viewConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Hub holds the websocket views that receive screen updates.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*viewConn
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{conns: make(map[string]*viewConn), logger: logger}
}

func (h *Hub) Add(conn *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = &viewConn{conn: conn}
	h.mu.Unlock()
	observability.ViewClients.Inc()
	return id
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	observability.ViewClients.Dec()
	_ = c.conn.Close()
}

func (h *Hub) Send(id string, v any) error {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.send(v)
}

// Broadcast sends v to every view and drops the ones that fail.
func (h *Hub) Broadcast(v any) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	conns := make([]*viewConn, 0, len(h.conns))
	for id, c := range h.conns {
		ids = append(ids, id)
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for i, c := range conns {
		if err := c.send(v); err != nil {
			h.logger.Warn("view send failed", "conn", ids[i], "error", err)
			h.Remove(ids[i])
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close drops every view.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.Remove(id)
	}
}
