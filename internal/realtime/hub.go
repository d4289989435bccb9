// Package realtime fans events out to websocket clients grouped by user.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/metrics"
	model "github.com/zhouzirui/mindsync/backend/internal/model/meditation"
	"github.com/zhouzirui/mindsync/backend/internal/service/meditation"
)

// Event types sent to clients.
const (
	EventConnected        = "connected"
	EventSessionCompleted = "session_completed"
	EventPong             = "pong"
	EventError            = "error"
)

// Event is the envelope of every outbound message.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// SessionCompletedData is pushed to the owner after a completion.
type SessionCompletedData struct {
	Session model.View       `json:"session"`
	Stats   meditation.Stats `json:"stats"`
}

// Room names a user's connection group.
func Room(userID string) string {
	return "user-" + userID
}

// Hub tracks connected clients per room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	now   func() time.Time
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{}), now: time.Now}
}

// Register adds c to its user's room.
func (h *Hub) Register(c *Client) {
	room := Room(c.userID)
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()

	metrics.TrackWSConnection(true)
	logging.Info().Str("user_id", c.userID).Str("room", room).Msg("[websocket] client joined")
}

// Unregister removes c and closes its send queue. It returns how many
// connections the user still has.
func (h *Hub) Unregister(c *Client) int {
	room := Room(c.userID)
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		h.mu.Unlock()
		return 0
	}
	if _, ok := members[c]; !ok {
		remaining := len(members)
		h.mu.Unlock()
		return remaining
	}
	delete(members, c)
	close(c.send)
	remaining := len(members)
	if remaining == 0 {
		delete(h.rooms, room)
	}
	h.mu.Unlock()

	metrics.TrackWSConnection(false)
	logging.Info().Str("user_id", c.userID).Msg("[websocket] client left")
	return remaining
}

// Connections returns the number of live connections for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[Room(userID)])
}

// SendToUser delivers an event to every connection of userID and returns the
// number of clients that accepted it.
func (h *Hub) SendToUser(userID, eventType string, data any) int {
	payload, ok := h.encode(eventType, data)
	if !ok {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.rooms[Room(userID)] {
		if c.enqueue(payload) {
			delivered++
		}
	}
	return delivered
}

// SendToClient delivers an event to a single connection if it is still registered.
func (h *Hub) SendToClient(c *Client, eventType string, data any) bool {
	payload, ok := h.encode(eventType, data)
	if !ok {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, registered := h.rooms[Room(c.userID)][c]; !registered {
		return false
	}
	return c.enqueue(payload)
}

// BroadcastExcept delivers an event to every connection not owned by userID.
func (h *Hub) BroadcastExcept(userID, eventType string, data any) {
	payload, ok := h.encode(eventType, data)
	if !ok {
		return
	}

	skip := Room(userID)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for room, members := range h.rooms {
		if room == skip {
			continue
		}
		for c := range members {
			c.enqueue(payload)
		}
	}
}

// SessionCompleted pushes the completed session and fresh stats to the owner.
func (h *Hub) SessionCompleted(ctx context.Context, userID string, session model.View, stats meditation.Stats) {
	n := h.SendToUser(userID, EventSessionCompleted, SessionCompletedData{Session: session, Stats: stats})
	logging.Ctx(ctx).Debug().Str("user_id", userID).Int("clients", n).Msg("[websocket] session completion pushed")
}

func (h *Hub) encode(eventType string, data any) ([]byte, bool) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: h.now().UnixMilli()})
	if err != nil {
		logging.Error().Err(err).Str("event", eventType).Msg("[websocket] failed to encode event")
		return nil, false
	}
	return payload, true
}
