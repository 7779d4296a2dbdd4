// Package ws holds the realtime side: the room registry mapping
// conversation/job ids to live client connections, and the WebSocket
// plumbing around gorilla/websocket.
package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// frame is the wire shape in both directions:
// {"event": "...", "data": ...}.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type room struct {
	mu      sync.Mutex
	members map[string]*Client
}

// Hub is the connection room registry. Rooms are created on first join
// and dropped on last leave, so abandoned rooms cost nothing. Membership
// mutation and broadcast are serialized per room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
	log   *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{rooms: make(map[string]*room), log: log}
}

// Join adds c to the room, creating it if needed. Repeated joins are
// no-ops. The member insert happens under h.mu so a concurrent Leave
// cannot evict the room between the lookup and the insert.
func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[string]*Client)}
		h.rooms[roomID] = rm
	}
	rm.mu.Lock()
	rm.members[c.ID] = c
	rm.mu.Unlock()
	h.mu.Unlock()

	c.trackRoom(roomID)
}

// Leave removes c from the room and drops the room once empty.
func (h *Hub) Leave(roomID string, c *Client) {
	c.untrackRoom(roomID)

	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomID]
	if !ok {
		return
	}
	rm.mu.Lock()
	delete(rm.members, c.ID)
	empty := len(rm.members) == 0
	rm.mu.Unlock()
	if empty {
		delete(h.rooms, roomID)
	}
}

// Broadcast delivers an event frame to every member of the room at call
// time. There is no replay buffer: later joiners see nothing.
func (h *Hub) Broadcast(roomID, event string, payload any) {
	h.broadcast(roomID, event, payload, nil)
}

// BroadcastExcept is Broadcast minus one sender, for echoing a client's
// own message to the rest of its room.
func (h *Hub) BroadcastExcept(roomID, event string, payload any, except *Client) {
	h.broadcast(roomID, event, payload, except)
}

func (h *Hub) broadcast(roomID, event string, payload any, except *Client) {
	h.mu.RLock()
	rm, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("broadcast marshal", zap.String("room", roomID), zap.Error(err))
		return
	}
	msg, err := json.Marshal(frame{Event: event, Data: data})
	if err != nil {
		h.log.Error("broadcast marshal", zap.String("room", roomID), zap.Error(err))
		return
	}

	rm.mu.Lock()
	targets := make([]*Client, 0, len(rm.members))
	for _, c := range rm.members {
		if except != nil && c.ID == except.ID {
			continue
		}
		targets = append(targets, c)
	}
	rm.mu.Unlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			// the client's writer is stuck; realtime is best-effort
			h.log.Warn("broadcast dropped for slow client",
				zap.String("room", roomID), zap.String("client", c.ID))
		}
	}
}

// Disconnect removes the client from every room it joined. Invoked when
// the connection's read loop ends, so no dangling membership survives a
// dropped socket.
func (h *Hub) Disconnect(c *Client) {
	for _, roomID := range c.roomIDs() {
		h.Leave(roomID, c)
	}
}
