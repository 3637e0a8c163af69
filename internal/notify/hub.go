package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Conn is the slice of a websocket connection the hub needs. The fiber
// websocket conn satisfies it directly; tests substitute a recorder.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// wsMessage is the frame delivered to connected clients.
type wsMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Hub tracks the open websocket connections per user and implements
// Publisher by pushing events to the targeted users' connections. A user may
// hold several connections (multiple tabs or devices).
type Hub struct {
	mu     sync.RWMutex
	conns  map[string][]Conn
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[string][]Conn),
		logger: logger,
	}
}

// Register attaches a connection to a user.
func (h *Hub) Register(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[userID] = append(h.conns[userID], conn)
}

// Unregister detaches a connection. The connection is not closed here; the
// read loop that owns it does that.
func (h *Hub) Unregister(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.conns[userID]
	for i, c := range conns {
		if c == conn {
			h.conns[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// Publish pushes the event to every connection of the listed users, or to
// all connected users when none are listed. A write failure drops that
// connection from the hub.
func (h *Hub) Publish(_ context.Context, event string, payload any, userIDs ...string) error {
	h.mu.RLock()
	targets := make(map[string][]Conn)
	if len(userIDs) == 0 {
		for id, conns := range h.conns {
			targets[id] = append([]Conn(nil), conns...)
		}
	} else {
		for _, id := range userIDs {
			if conns, ok := h.conns[id]; ok {
				targets[id] = append([]Conn(nil), conns...)
			}
		}
	}
	h.mu.RUnlock()

	msg := wsMessage{Event: event, Payload: payload}
	for userID, conns := range targets {
		for _, conn := range conns {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("Dropping websocket connection after write failure",
					"user_id", userID, "event", event, "error", err)
				h.Unregister(userID, conn)
				conn.Close()
			}
		}
	}

	return nil
}

// Connected reports how many connections a user currently holds.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}
