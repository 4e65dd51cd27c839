package feed

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub fans calendar events out to connected sessions. A user may hold
// several sessions at once (phone plus browser), each keyed by its own id.
type Hub struct {
	sessions map[int64]map[string]*websocket.Conn
	mutex    sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[int64]map[string]*websocket.Conn),
	}
}

// Register attaches a connection and returns its session id.
func (h *Hub) Register(userID int64, conn *websocket.Conn) string {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	sessionID := uuid.NewString()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[string]*websocket.Conn)
	}
	h.sessions[userID][sessionID] = conn
	return sessionID
}

func (h *Hub) Unregister(userID int64, sessionID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if conns, exists := h.sessions[userID]; exists {
		if conn, ok := conns[sessionID]; ok && conn != nil {
			_ = conn.Close()
		}
		delete(conns, sessionID)
		if len(conns) == 0 {
			delete(h.sessions, userID)
		}
	}
}

// SendToUser writes the event to every session of a user. Sessions whose
// write fails are dropped. Returns true if at least one write succeeded.
func (h *Hub) SendToUser(userID int64, event Event) bool {
	h.mutex.RLock()
	conns := make(map[string]*websocket.Conn, len(h.sessions[userID]))
	for id, conn := range h.sessions[userID] {
		conns[id] = conn
	}
	h.mutex.RUnlock()

	delivered := false
	for sessionID, conn := range conns {
		if conn == nil {
			continue
		}
		if err := conn.WriteJSON(event); err != nil {
			h.Unregister(userID, sessionID)
			continue
		}
		delivered = true
	}
	return delivered
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.sessions[userID]) > 0
}

func (h *Hub) SessionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	total := 0
	for _, conns := range h.sessions {
		total += len(conns)
	}
	return total
}

func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for userID, conns := range h.sessions {
		for _, conn := range conns {
			if conn != nil {
				_ = conn.Close()
			}
		}
		delete(h.sessions, userID)
	}
}
