package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatspace/internal/observability"
)

// Envelope is the wire frame delivered to clients.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Hub maintains the active websocket connections, keyed by user id so
// events can be addressed to arbitrary member sets. A user may hold
// several connections (multiple devices).
type Hub struct {
	users    map[int]map[*websocket.Conn]bool
	connInfo map[int]map[*websocket.Conn]ConnInfo
	// gorilla allows one writer per connection; concurrent emits to the
	// same recipient must take the connection's lock.
	writeMu map[*websocket.Conn]*sync.Mutex
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		users:    make(map[int]map[*websocket.Conn]bool),
		connInfo: make(map[int]map[*websocket.Conn]ConnInfo),
		writeMu:  make(map[*websocket.Conn]*sync.Mutex),
	}
}

// AddClient registers a websocket connection for a user.
func (h *Hub) AddClient(userID int, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[*websocket.Conn]bool)
	}
	h.users[userID][conn] = true
	if _, ok := h.connInfo[userID]; !ok {
		h.connInfo[userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[userID][conn] = info
	if _, ok := h.writeMu[conn]; !ok {
		h.writeMu[conn] = &sync.Mutex{}
	}
}

// RemoveClient removes a user's websocket connection.
func (h *Hub) RemoveClient(userID int, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.users[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
	if infos, ok := h.connInfo[userID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo, userID)
		}
	}
	delete(h.writeMu, conn)
}

// Emit sends a named event to every connection of every listed user.
// Write failures drop the offending connection; the rest of the fan-out
// proceeds.
func (h *Hub) Emit(event string, userIDs []int, payload any) {
	frame, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		log.Printf("websocket marshal error event=%s: %v", event, err)
		return
	}

	for _, userID := range userIDs {
		h.mu.RLock()
		conns := make([]*websocket.Conn, 0, len(h.users[userID]))
		for conn := range h.users[userID] {
			conns = append(conns, conn)
		}
		h.mu.RUnlock()

		for _, conn := range conns {
			if err := h.writeConn(conn, frame); err != nil {
				log.Printf("websocket write error: %v", err)
				conn.Close()
				h.publishWSError(userID, conn, err)
				h.RemoveClient(userID, conn)
			}
		}
	}
}

// writeConn serializes writes to one connection. A connection that was
// removed mid-fanout is skipped.
func (h *Hub) writeConn(conn *websocket.Conn, frame []byte) error {
	h.mu.RLock()
	lock, ok := h.writeMu[conn]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	lock.Lock()
	defer lock.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (h *Hub) publishWSError(userID int, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(userID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.users", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}

func (h *Hub) getConnInfo(userID int, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.connInfo[userID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}
